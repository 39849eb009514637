package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// PDFFields is the structured output of the PDF field parser. Confidence is
// the additive score of the strategies that fired, clipped to [0,1]; Snippet
// is a bounded audit sample of the extracted text, emitted regardless of
// whether any strategy succeeded.
type PDFFields struct {
	FieldName          *string
	Acres              *float64
	Section            *string
	Block              *string
	Survey             *string
	AbstractNo         *string
	ReservoirWellCount *int

	Confidence float64
	Snippet    string
}

// snippetLimit bounds the audit snippet stored with each enrichment.
const snippetLimit = 600

// FieldStrategy is one named extraction attempt. Strategies are ordered from
// most to least specific per field; the first one that returns a value wins
// and later strategies for fields it filled are skipped. Keeping the order
// and weights as data makes each strategy testable in isolation.
type FieldStrategy struct {
	Name   string
	Weight float64
	Apply  func(text string) map[string]string
}

// Field keys produced by strategies.
const (
	fieldSection    = "section"
	fieldBlock      = "block"
	fieldSurvey     = "survey"
	fieldAbstract   = "abstract_no"
	fieldAcres      = "acres"
	fieldName       = "field_name"
	fieldWellCount  = "reservoir_well_count"
)

var (
	// The filled form renders section/block/survey/abstract as one tabular
	// line under a literal header row.
	surveyTablePattern = regexp.MustCompile(
		`(?i)section\s+block\s+(?:survey|township)\s+abstract[^\n]*\n\s*` +
			`([A-Z0-9-]+)\s+([A-Z0-9-]+)\s+([A-Z][A-Z0-9 .&'-]*?)\s+(A-?\d+)`)

	pdfSectionPattern  = regexp.MustCompile(`(?i)\bsection\b[:\s]+([A-Z0-9-]+)`)
	pdfBlockPattern    = regexp.MustCompile(`(?i)\bblock\b[:\s]+([A-Z0-9-]+)`)
	pdfSurveyPattern   = regexp.MustCompile(`(?i)\bsurvey\b[:\s]+([A-Z][A-Z0-9 .&'-]*?)(?:\s{2,}|[,;\n]|$)`)
	pdfAbstractPattern = regexp.MustCompile(`(?i)\babstract\b(?:\s*no\.?)?[:\s]+(A?-?\d+)`)

	contiguousAcresPattern = regexp.MustCompile(
		`(?i)(?:number\s+of\s+)?contiguous\s+acres[^\d]{0,60}?(\d[\d,]*(?:\.\d+)?)`)
	genericAcresPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s+acres\b`)

	fieldNamePattern = regexp.MustCompile(`([A-Z][A-Z0-9 .&'-]{2,40})\s*\(([A-Z][A-Z0-9 .&'-]{2,40})\)`)

	wellCountPattern = regexp.MustCompile(
		`(?i)total\s+number\s+of\s+wells\s+on\s+this\s+lease\s+in\s+this\s+reservoir[^\d]{0,80}?(\d{1,3})`)
)

// fieldNameBoilerplate excludes parentheticals that match the NAME(FORMATION)
// shape but are form chrome, not field names.
var fieldNameBoilerplate = []string{
	"RAILROAD COMMISSION",
	"COMMISSION USE",
	"FORM W-1",
	"THIS FACSIMILE",
	"REQUIRED",
	"ATTACHED",
	"SEE RULE",
}

// PDFStrategies is the ordered strategy list applied by PDFFieldParser.
var PDFStrategies = []FieldStrategy{
	{
		Name:   "survey_table_anchor",
		Weight: 0.4,
		Apply: func(text string) map[string]string {
			m := surveyTablePattern.FindStringSubmatch(text)
			if m == nil {
				return nil
			}
			return map[string]string{
				fieldSection:  m[1],
				fieldBlock:    m[2],
				fieldSurvey:   strings.TrimSpace(m[3]),
				fieldAbstract: m[4],
			}
		},
	},
	{Name: "section_label", Weight: 0.1, Apply: singleField(fieldSection, pdfSectionPattern)},
	{Name: "block_label", Weight: 0.1, Apply: singleField(fieldBlock, pdfBlockPattern)},
	{Name: "survey_label", Weight: 0.1, Apply: singleField(fieldSurvey, pdfSurveyPattern)},
	{Name: "abstract_label", Weight: 0.1, Apply: singleField(fieldAbstract, pdfAbstractPattern)},
	{Name: "contiguous_acres", Weight: 0.3, Apply: singleField(fieldAcres, contiguousAcresPattern)},
	{Name: "generic_acres", Weight: 0.2, Apply: singleField(fieldAcres, genericAcresPattern)},
	{
		Name:   "field_name_parenthetical",
		Weight: 0.3,
		Apply: func(text string) map[string]string {
			for _, m := range fieldNamePattern.FindAllStringSubmatch(text, 10) {
				candidate := strings.TrimSpace(m[1]) + " (" + strings.TrimSpace(m[2]) + ")"
				if isBoilerplate(candidate) {
					continue
				}
				return map[string]string{fieldName: candidate}
			}
			return nil
		},
	},
	{Name: "reservoir_well_count_question", Weight: 0.3, Apply: singleField(fieldWellCount, wellCountPattern)},
}

func singleField(field string, re *regexp.Regexp) func(string) map[string]string {
	return func(text string) map[string]string {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		v := strings.TrimSpace(m[1])
		if v == "" {
			return nil
		}
		return map[string]string{field: v}
	}
}

func isBoilerplate(candidate string) bool {
	upper := strings.ToUpper(candidate)
	for _, phrase := range fieldNameBoilerplate {
		if strings.Contains(upper, phrase) {
			return true
		}
	}
	return false
}

// PDFFieldParser runs the ordered strategies over extracted PDF text and
// assembles the typed result.
func PDFFieldParser(text string) PDFFields {
	values := map[string]string{}
	confidence := 0.0

	for _, st := range PDFStrategies {
		extracted := st.Apply(text)
		fired := false
		for field, value := range extracted {
			if _, done := values[field]; done {
				continue
			}
			values[field] = value
			fired = true
		}
		if fired {
			confidence += st.Weight
		}
	}
	if confidence > 1 {
		confidence = 1
	}

	out := PDFFields{
		Confidence: confidence,
		Snippet:    auditSnippet(text),
	}
	if v, ok := values[fieldSection]; ok {
		out.Section = &v
	}
	if v, ok := values[fieldBlock]; ok {
		out.Block = &v
	}
	if v, ok := values[fieldSurvey]; ok {
		out.Survey = &v
	}
	if v, ok := values[fieldAbstract]; ok {
		out.AbstractNo = &v
	}
	if v, ok := values[fieldName]; ok {
		out.FieldName = &v
	}
	if v, ok := values[fieldAcres]; ok {
		out.Acres = parseAcres(v)
	}
	if v, ok := values[fieldWellCount]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			out.ReservoirWellCount = &n
		}
	}
	return out
}

// auditSnippet returns a whitespace-collapsed sample of the text bounded to
// snippetLimit bytes, saved alongside results for later diagnosis.
func auditSnippet(text string) string {
	collapsed := strings.TrimSpace(collapseSpaces(text))
	if len(collapsed) <= snippetLimit {
		return collapsed
	}
	return collapsed[:snippetLimit]
}
