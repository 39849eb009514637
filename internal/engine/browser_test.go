package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetAnchorSelector(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a[href*="pager.offset=40"]`, offsetAnchorSelector("pager.offset", 40))
}

func TestOffsetAnchorSelectorSkipsBackwardLinks(t *testing.T) {
	t.Parallel()

	// Page 2 layout: the backward link comes first in DOM order. A selector
	// keyed on the parameter alone would click it and walk the results
	// backward; keying on the exact offset hits only the forward anchor.
	doc := pagingDoc(t, `
	  <a href="pagedResults.do?pager.offset=0">first</a>
	  <a href="pagedResults.do?pager.offset=40">3</a>`)

	matches := doc.Find(offsetAnchorSelector("pager.offset", 40))
	require.Equal(t, 1, matches.Length())
	href, _ := matches.Attr("href")
	assert.Contains(t, href, "pager.offset=40")
}

func TestLandedOnOffset(t *testing.T) {
	t.Parallel()

	assert.True(t, landedOnOffset("https://portal.example.gov/ews/pagedResults.do?pager.offset=40", "pager.offset", 40))
	assert.False(t, landedOnOffset("https://portal.example.gov/ews/pagedResults.do?pager.offset=0", "pager.offset", 40))
	assert.False(t, landedOnOffset("https://portal.example.gov/ews/pagedResults.do", "pager.offset", 40))
	assert.False(t, landedOnOffset("", "pager.offset", 40))
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	u, err := parseLocation("https://portal.example.gov/ews/pagedResults.do?pager.offset=20")
	require.NoError(t, err)
	assert.Equal(t, "/ews/pagedResults.do", u.Path)

	_, err = parseLocation("")
	require.Error(t, err)
	_, err = parseLocation("   ")
	require.Error(t, err)
}

func TestRenderedDocument(t *testing.T) {
	t.Parallel()

	e := &BrowserEngine{}
	doc, current, err := e.renderedDocument(
		`<html><head><title>Query Results</title></head><body></body></html>`,
		"https://portal.example.gov/ews/pagedResults.do?pager.offset=20",
	)
	require.NoError(t, err)
	assert.Equal(t, "Query Results", doc.Find("title").Text())
	assert.Equal(t, 20, offsetFrom(current, "pager.offset"))

	_, _, err = e.renderedDocument("<html></html>", "")
	require.Error(t, err)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	canceled := make(chan struct{})
	parent, cancelParent := context.WithCancel(context.Background())
	stop := forwardCancel(parent, func() { close(canceled) })
	defer stop()

	cancelParent()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("parent cancellation was not forwarded")
	}
}

func TestForwardCancelStopped(t *testing.T) {
	t.Parallel()

	canceled := make(chan struct{})
	parent, cancelParent := context.WithCancel(context.Background())
	stop := forwardCancel(parent, func() { close(canceled) })

	stop()
	time.Sleep(20 * time.Millisecond)
	cancelParent()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-canceled:
		t.Fatal("cancel fired after the forwarder was stopped")
	default:
	}
}