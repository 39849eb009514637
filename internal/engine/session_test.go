package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchFormPage = `
<html><head><title>Drilling Permit Query</title></head><body>
<form action="/dp/publicQueryAction.do;jsessionid=abc" method="post">
  <input type="hidden" name="methodToCall" value="search"/>
  <input type="hidden" name="org.apache.struts.TOKEN" value="deadbeef"/>
  <table>
    <tr>
      <td>Submitted Date From <input type="text" name="searchArgs.submittedDtFrom" value=""/></td>
      <td>Submitted Date To <input type="text" name="searchArgs.submittedDtTo" value=""/></td>
    </tr>
  </table>
  <select name="searchArgs.countyCode">
    <option value="">All</option>
    <option value="329" selected>MIDLAND</option>
  </select>
  <input type="submit" name="submit" value="Search"/>
  <input type="button" name="reset" value="Reset"/>
</form>
</body></html>`

func TestParseSearchForm(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "https://portal.example.gov"}.withDefaults()
	sf, err := parseSearchForm(pagingDoc(t, searchFormPage), cfg)
	require.NoError(t, err)

	assert.Equal(t, "/dp/publicQueryAction.do;jsessionid=abc", sf.action)
	assert.Equal(t, "search", sf.fields["methodToCall"])
	assert.Equal(t, "deadbeef", sf.fields["org.apache.struts.TOKEN"], "hidden tokens must survive the replay")
	assert.Equal(t, "329", sf.fields["searchArgs.countyCode"], "selected option carries through")
	assert.NotContains(t, sf.fields, "reset", "button inputs are skipped")

	assert.Equal(t, "searchArgs.submittedDtFrom", sf.beginField)
	assert.Equal(t, "searchArgs.submittedDtTo", sf.endField)
}

func TestParseSearchFormDateDiscoveryByLabel(t *testing.T) {
	t.Parallel()

	// Renamed inputs, labels still mention dates.
	page := `<form>
	  <div>Date range begin <input type="text" name="qryStartDt"/></div>
	  <div>Date range end <input type="text" name="qryStopDt"/></div>
	  <input type="hidden" name="tok" value="1"/>
	</form>`
	cfg := Config{BaseURL: "https://portal.example.gov"}.withDefaults()
	sf, err := parseSearchForm(pagingDoc(t, page), cfg)
	require.NoError(t, err)

	assert.Equal(t, "qryStartDt", sf.beginField)
	assert.Equal(t, "qryStopDt", sf.endField)
}

func TestParseSearchFormFallsBackToFixedNames(t *testing.T) {
	t.Parallel()

	page := `<form><input type="text" name="mystery"/><input type="hidden" name="tok" value="1"/></form>`
	cfg := Config{BaseURL: "https://portal.example.gov"}.withDefaults()
	sf, err := parseSearchForm(pagingDoc(t, page), cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultBeginDateField, sf.beginField)
	assert.Equal(t, DefaultEndDateField, sf.endField)
}

func TestParseSearchFormNoForm(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: "https://portal.example.gov"}.withDefaults()
	_, err := parseSearchForm(pagingDoc(t, `<html><body>maintenance</body></html>`), cfg)
	require.Error(t, err)
}

func TestLooksLikeLogin(t *testing.T) {
	t.Parallel()

	markers := Config{BaseURL: "x"}.withDefaults().LoginMarkers

	loginByTitle := pagingDoc(t, `<html><head><title>RRC Login</title></head></html>`)
	assert.True(t, looksLikeLogin(loginByTitle, "https://portal.example.gov/results.do", markers))

	loginByURL := pagingDoc(t, `<html><head><title>Welcome</title></head></html>`)
	assert.True(t, looksLikeLogin(loginByURL, "https://portal.example.gov/security/login.do", markers))

	results := pagingDoc(t, `<html><head><title>Query Results</title></head></html>`)
	assert.False(t, looksLikeLogin(results, "https://portal.example.gov/results.do", markers))
}

func TestDiscoverDateFieldsIgnoresNonDateInputs(t *testing.T) {
	t.Parallel()

	page := `<form>
	  <div>Operator name <input type="text" name="operatorName"/></div>
	  <div>API number from <input type="text" name="apiFrom"/></div>
	</form>`
	doc := pagingDoc(t, page)
	begin, end := discoverDateFields(doc.Find("form").First())
	assert.Empty(t, begin)
	assert.Empty(t, end)
}
