package parse

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetailFields are the secondary attributes recoverable from one permit's
// detail page. Nil means the page did not expose the field; that is an
// expected outcome, not an error.
type DetailFields struct {
	WellboreType *string
	FieldName    *string
	Acres        *float64
	Section      *string
	Block        *string
	Survey       *string
	AbstractNo   *string
	PDFURL       *string
}

var (
	acresValuePattern = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)`)
	sectionPattern    = regexp.MustCompile(`(?i)\bsection\b[:\s]+([A-Z0-9-]+)`)
	blockPattern      = regexp.MustCompile(`(?i)\bblock\b[:\s]+([A-Z0-9-]+)`)
	surveyPattern     = regexp.MustCompile(`(?i)\bsurvey\b[:\s]+([A-Z][A-Z0-9 .&'-]*?)(?:\s{2,}|[,;]|$)`)
	abstractPattern   = regexp.MustCompile(`(?i)\babstract\b(?:\s*no\.?)?[:\s]+(A?-?\d+)`)
)

// Detail extracts the secondary field set from a permit detail page. Labeled
// cells are read first; a regex pass over the page text picks up whatever the
// label scan missed. Everything is positional/lexical, nothing is guaranteed.
func Detail(doc *goquery.Document, pageURL *url.URL) DetailFields {
	var out DetailFields

	out.WellboreType = labelValue(doc, "wellbore")
	out.FieldName = labelValue(doc, "field name")
	if out.FieldName == nil {
		out.FieldName = labelValue(doc, "field")
	}
	if raw := labelValue(doc, "acres"); raw != nil {
		if acres := parseAcres(*raw); acres != nil {
			out.Acres = acres
		}
	}
	out.Section = labelValue(doc, "section")
	out.Block = labelValue(doc, "block")
	out.Survey = labelValue(doc, "survey")
	out.AbstractNo = labelValue(doc, "abstract")

	pageText := collapseSpaces(doc.Text())
	if out.Section == nil {
		out.Section = firstGroup(sectionPattern, pageText)
	}
	if out.Block == nil {
		out.Block = firstGroup(blockPattern, pageText)
	}
	if out.Survey == nil {
		out.Survey = firstGroup(surveyPattern, pageText)
	}
	if out.AbstractNo == nil {
		out.AbstractNo = firstGroup(abstractPattern, pageText)
	}

	out.PDFURL = pdfLink(doc, pageURL)
	return out
}

// labelValue finds a cell whose text matches the label and returns the text
// of the cell that follows it.
func labelValue(doc *goquery.Document, label string) *string {
	var out *string
	doc.Find("td, th, dt, label, b, strong").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := normalizeLabel(cell.Text())
		if !strings.Contains(text, label) || len(text) > len(label)+24 {
			return true
		}
		value := strings.TrimSpace(collapseSpaces(nextCellText(cell)))
		if value == "" || strings.EqualFold(value, text) {
			return true
		}
		out = &value
		return false
	})
	return out
}

func nextCellText(cell *goquery.Selection) string {
	if next := cell.Next(); next.Length() > 0 {
		return next.Text()
	}
	// Label and value sometimes share one cell, colon-separated.
	parts := strings.SplitN(cell.Text(), ":", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func parseAcres(raw string) *float64 {
	m := acresValuePattern.FindString(raw)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return nil
	}
	return &v
}

// pdfLink returns the first outbound PDF anchor, absolutized against the
// page URL.
func pdfLink(doc *goquery.Document, pageURL *url.URL) *string {
	var out *string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		low := strings.ToLower(href)
		if !strings.Contains(low, ".pdf") && !strings.Contains(low, "viewpdf") && !strings.Contains(low, "downloadpdf") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := href
		if pageURL != nil {
			resolved = pageURL.ResolveReference(ref).String()
		}
		out = &resolved
		return false
	})
	return out
}
