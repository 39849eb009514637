// Package parse extracts permit data from the portal's HTML pages and
// regulatory PDF forms. The source is not an API: layouts shift between
// deployments, so every extractor here is a best-effort heuristic that
// degrades to "no data" instead of failing the run.
package parse

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/drillwatch/permit-pipeline/internal/permits"
)

// ErrNoResultsTable indicates the page had no table matching the results
// layout. Expected when a query returns zero rows or the layout drifted.
var ErrNoResultsTable = errors.New("no recognizable results table")

// Header labels that must all appear in the results table header row.
var requiredHeaderLabels = []string{"operator", "well", "status", "lease"}

const (
	minResultColumns = 6
	maxResultColumns = 24
)

var (
	datePattern       = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	operatorNoPattern = regexp.MustCompile(`\(([0-9]{4,8})\)\s*$`)
	wellNoGuess       = regexp.MustCompile(`(?i)\bwell\s*(?:no\.?\s*)?#?\s*([A-Z0-9-]+)\s*$`)
)

// ResultTable extracts one permit per data row from a search-results page.
// The table is selected by header labels and a plausible column count, which
// disambiguates it from the portal's decorative layout tables.
func ResultTable(doc *goquery.Document, base *url.URL) ([]permits.PermitRecord, error) {
	table, headers := findResultsTable(doc)
	if table == nil {
		return nil, ErrNoResultsTable
	}

	statusCol := columnIndex(headers, "status")
	dateCol := columnIndex(headers, "date")
	apiCol := columnIndex(headers, "api")
	operatorCol := columnIndex(headers, "operator")
	leaseCol := columnIndex(headers, "lease")
	wellNoCol := columnIndex(headers, "well")
	districtCol := columnIndex(headers, "dist")
	countyCol := columnIndex(headers, "county")
	profileCol := columnIndex(headers, "wellbore")
	purposeCol := columnIndex(headers, "purpose")
	amendCol := columnIndex(headers, "amend")
	depthCol := columnIndex(headers, "depth")
	queueCol := columnIndex(headers, "queue")

	var rows []permits.PermitRecord
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := tr.Find("td")
		if cells.Length() < minResultColumns {
			return
		}

		rec := permits.PermitRecord{
			StatusNo:        cellText(cells, statusCol),
			StatusDate:      firstDateToken(cellText(cells, dateCol)),
			APINo:           cellText(cells, apiCol),
			LeaseName:       cellText(cells, leaseCol),
			WellNo:          cellText(cells, wellNoCol),
			District:        cellText(cells, districtCol),
			County:          cellText(cells, countyCol),
			WellboreProfile: cellText(cells, profileCol),
			FilingPurpose:   cellText(cells, purposeCol),
			Amend:           normalizeAmend(cellText(cells, amendCol)),
			TotalDepth:      cellText(cells, depthCol),
			CurrentQueue:    cellText(cells, queueCol),
		}
		rec.OperatorName, rec.OperatorNo = splitOperator(cellText(cells, operatorCol))
		rec.DetailURL = detailLink(cells, leaseCol, base)
		rec.Enrichment.ParseStatus = permits.StatusUnprocessed

		// The dedicated well-number column wins; guessing from the lease
		// cell only covers layouts that merged the two.
		if rec.WellNo == "" {
			rec.WellNo = guessWellNo(rec.LeaseName)
		}

		// Spacer and footer rows carry none of the identifying fields.
		if rec.StatusNo == "" && rec.APINo == "" && rec.OperatorName == "" {
			return
		}
		normalizeRecord(&rec)
		rows = append(rows, rec)
	})
	return rows, nil
}

// findResultsTable returns the first table whose header row carries the
// required labels with a plausible cell count, plus its header index map.
func findResultsTable(doc *goquery.Document) (*goquery.Selection, map[string]int) {
	var (
		found   *goquery.Selection
		headers map[string]int
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		headerRow := table.Find("tr").First()
		cells := headerRow.Find("th")
		if cells.Length() == 0 {
			cells = headerRow.Find("td")
		}
		if cells.Length() < minResultColumns || cells.Length() > maxResultColumns {
			return true
		}
		index := map[string]int{}
		cells.Each(func(i int, cell *goquery.Selection) {
			label := normalizeLabel(cell.Text())
			if label == "" {
				return
			}
			if _, dup := index[label]; !dup {
				index[label] = i
			}
		})
		for _, want := range requiredHeaderLabels {
			if columnIndex(index, want) == -1 {
				return true
			}
		}
		found = table
		headers = index
		return false
	})
	return found, headers
}

// columnIndex finds the first header label containing the keyword,
// case-insensitively. Returns -1 when no header matches.
func columnIndex(headers map[string]int, keyword string) int {
	best := -1
	for label, idx := range headers {
		if !strings.Contains(label, keyword) {
			continue
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	return best
}

func cellText(cells *goquery.Selection, idx int) string {
	if idx < 0 || idx >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(collapseSpaces(cells.Eq(idx).Text()))
}

func detailLink(cells *goquery.Selection, leaseCol int, base *url.URL) string {
	if leaseCol < 0 || leaseCol >= cells.Length() {
		return ""
	}
	href, ok := cells.Eq(leaseCol).Find("a[href]").First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// firstDateToken pulls the first MM/DD/YYYY out of a composite cell; the
// source packs both a submission and an approval date into one value.
func firstDateToken(raw string) string {
	return datePattern.FindString(raw)
}

// splitOperator separates "NAME (123456)" into name and operator number.
func splitOperator(raw string) (name, number string) {
	m := operatorNoPattern.FindStringSubmatchIndex(raw)
	if m == nil {
		return raw, ""
	}
	return strings.TrimSpace(raw[:m[0]]), raw[m[2]:m[3]]
}

// normalizeAmend maps the amend cell to a tri-state boolean.
func normalizeAmend(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y":
		v := true
		return &v
	case "no", "n":
		v := false
		return &v
	default:
		return nil
	}
}

var apiNoJunk = regexp.MustCompile(`[^0-9-]`)

// normalizeRecord cleans up the portal's formatting quirks so rows from
// different deployments compare and upsert consistently.
func normalizeRecord(rec *permits.PermitRecord) {
	rec.APINo = apiNoJunk.ReplaceAllString(rec.APINo, "")
	rec.County = strings.ToUpper(rec.County)
	if len(rec.District) == 1 && rec.District >= "0" && rec.District <= "9" {
		rec.District = "0" + rec.District
	}
}

func guessWellNo(leaseText string) string {
	m := wellNoGuess.FindStringSubmatch(leaseText)
	if m == nil {
		return ""
	}
	return m[1]
}

func normalizeLabel(raw string) string {
	return strings.ToLower(collapseSpaces(strings.TrimSpace(raw)))
}

var spacesPattern = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return spacesPattern.ReplaceAllString(s, " ")
}
