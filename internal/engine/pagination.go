package engine

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nextPageURL locates the link advancing the result set past the current
// page. The portal paginates with an offset query parameter rather than page
// numbers, and its "next" anchors frequently carry relative hrefs with
// duplicated path segments, so everything is normalized before use.
func nextPageURL(doc *goquery.Document, current *url.URL, offsetParam string) (string, bool) {
	currentOffset := offsetFrom(current, offsetParam)

	best := ""
	bestOffset := -1
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || !strings.Contains(href, offsetParam) {
			return
		}
		resolved, err := resolvePagingURL(href, current)
		if err != nil {
			return
		}
		offset := offsetFrom(resolved, offsetParam)
		if offset <= currentOffset {
			return
		}
		if bestOffset == -1 || offset < bestOffset {
			bestOffset = offset
			best = resolved.String()
		}
	})
	if best == "" {
		return "", false
	}
	return best, true
}

func offsetFrom(u *url.URL, offsetParam string) int {
	raw := u.Query().Get(offsetParam)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// resolvePagingURL makes href absolute against base and cleans up the
// artifacts the portal's link rewriting leaves behind.
func resolvePagingURL(href string, base *url.URL) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	resolved := base.ResolveReference(ref)
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""
	resolved.Path = collapseRepeatedSegments(resolved.Path)
	return resolved, nil
}

// collapseRepeatedSegments removes immediately duplicated path segments,
// turning "/ews/ews/pagedResults.do" into "/ews/pagedResults.do".
func collapseRepeatedSegments(path string) string {
	segments := strings.Split(path, "/")
	out := segments[:0]
	prev := "\x00"
	for _, seg := range segments {
		if seg != "" && seg == prev {
			continue
		}
		out = append(out, seg)
		prev = seg
	}
	return strings.Join(out, "/")
}
