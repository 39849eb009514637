package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// fetchSession owns the per-invocation state of the HTTP engine: the cookie
// jar, the harvested form fields, and the last response. It lives for one
// Search call and is discarded afterward; nothing here is persisted.
type fetchSession struct {
	collector *colly.Collector
	last      *sessionPage
	lastErr   error
}

type sessionPage struct {
	URL        string
	StatusCode int
	Body       []byte
}

func newFetchSession(cfg Config) *fetchSession {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cfg.Timeout)

	s := &fetchSession{collector: c}
	c.OnResponse(func(r *colly.Response) {
		s.last = &sessionPage{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		s.lastErr = err
	})
	return s
}

func (s *fetchSession) get(ctx context.Context, rawURL string) (*sessionPage, error) {
	return s.run(ctx, func() error { return s.collector.Visit(rawURL) }, rawURL)
}

func (s *fetchSession) post(ctx context.Context, rawURL string, form map[string]string) (*sessionPage, error) {
	return s.run(ctx, func() error { return s.collector.Post(rawURL, form) }, rawURL)
}

func (s *fetchSession) run(ctx context.Context, visit func() error, rawURL string) (*sessionPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("session fetch canceled: %w", err)
	}
	s.last = nil
	s.lastErr = nil
	if err := visit(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if s.lastErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, s.lastErr)
	}
	if s.last == nil {
		return nil, fmt.Errorf("fetch %s: no response received", rawURL)
	}
	return s.last, nil
}

// searchForm is the harvested state of the portal's query form.
type searchForm struct {
	action     string
	fields     map[string]string
	beginField string
	endField   string
}

var (
	beginLabelPattern = regexp.MustCompile(`\b(from|begin|start)\b`)
	endLabelPattern   = regexp.MustCompile(`\b(to|thru|through|end)\b`)
)

// parseSearchForm collects every named input on the query form, hidden tokens
// included, and locates the two date fields by label proximity. When the
// labels have drifted too far to match, the fixed field names take over.
func parseSearchForm(doc *goquery.Document, cfg Config) (*searchForm, error) {
	form := doc.Find("form").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.Find("input").Length() > 0
	}).First()
	if form.Length() == 0 {
		return nil, fmt.Errorf("no form with inputs on search page")
	}

	sf := &searchForm{
		fields: map[string]string{},
	}
	sf.action, _ = form.Attr("action")

	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		typ, _ := in.Attr("type")
		if name == "" || strings.EqualFold(typ, "button") || strings.EqualFold(typ, "image") {
			return
		}
		value, _ := in.Attr("value")
		sf.fields[name] = value
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		if name == "" {
			return
		}
		value, _ := sel.Find("option[selected]").First().Attr("value")
		sf.fields[name] = value
	})

	sf.beginField, sf.endField = discoverDateFields(form)
	if sf.beginField == "" {
		sf.beginField = cfg.BeginDateField
	}
	if sf.endField == "" {
		sf.endField = cfg.EndDateField
	}
	return sf, nil
}

// discoverDateFields walks the form's text inputs and matches each against
// the text of its enclosing cell or label.
func discoverDateFields(form *goquery.Selection) (begin, end string) {
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		typ, _ := in.Attr("type")
		if name == "" || strings.EqualFold(typ, "hidden") || strings.EqualFold(typ, "submit") {
			return
		}
		proximity := strings.ToLower(in.Closest("td, label, li, div").Text())
		if !strings.Contains(proximity, "date") && !strings.Contains(proximity, "submitted") {
			return
		}
		nameLower := strings.ToLower(name)
		switch {
		case begin == "" && (beginLabelPattern.MatchString(proximity) || strings.HasSuffix(nameLower, "from")):
			begin = name
		case end == "" && (endLabelPattern.MatchString(proximity) || strings.HasSuffix(nameLower, "to")):
			end = name
		}
	})
	return begin, end
}
