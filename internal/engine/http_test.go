package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/permits"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func resultRow(statusNo, lease string) string {
	return fmt.Sprintf(`<tr>
	  <td>%s</td><td>08/01/2024</td><td>42-123-00001</td>
	  <td>TEST OPERATOR (123456)</td><td><a href="detail.do?pktNo=%s">%s</a></td><td>1H</td>
	  <td>08</td><td>MIDLAND</td><td>Horizontal</td><td>New Drill</td>
	  <td>No</td><td>9000</td><td>Mapping</td>
	</tr>`, statusNo, statusNo, lease)
}

const resultHeader = `<tr>
  <th>Status No.</th><th>Submitted Date</th><th>API No.</th>
  <th>Operator Name/Number</th><th>Lease Name</th><th>Well No.</th>
  <th>Dist.</th><th>County</th><th>Wellbore Profile</th>
  <th>Filing Purpose</th><th>Amend</th><th>Total Depth</th><th>Current Queue</th>
</tr>`

func resultPage(nextOffset int, rows ...string) string {
	page := `<html><head><title>Query Results</title></head><body><table>` + resultHeader
	for _, row := range rows {
		page += row
	}
	page += `</table>`
	if nextOffset > 0 {
		page += fmt.Sprintf(`<a href="pagedResults.do?pager.offset=%d">[Next]</a>`, nextOffset)
	}
	return page + `</body></html>`
}

func newPortalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dp/initializePublicQueryAction.do", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchFormPage)
	})
	mux.HandleFunc("/dp/publicQueryAction.do", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "deadbeef", r.FormValue("org.apache.struts.TOKEN"))
		assert.Equal(t, "08/01/2024", r.FormValue("searchArgs.submittedDtFrom"))
		assert.Equal(t, "08/31/2024", r.FormValue("searchArgs.submittedDtTo"))
		fmt.Fprint(w, resultPage(20, resultRow("893412", "SPRABERRY UNIT")))
	})
	mux.HandleFunc("/dp/pagedResults.do", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("pager.offset"))
		fmt.Fprint(w, resultPage(0, resultRow("893413", "RANCH A")))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testQuery() permits.SearchQuery {
	return permits.SearchQuery{BeginDate: "08/01/2024", EndDate: "08/31/2024"}
}

func TestHTTPEngineSearch(t *testing.T) {
	server := newPortalServer(t)

	eng, err := NewHTTPEngine(
		Config{BaseURL: server.URL},
		NewLimiter(0, 0),
		fixedClock{t: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)
	require.NoError(t, err)

	result, err := eng.Search(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, "http", result.Method)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "893412", result.Items[0].StatusNo)
	assert.Equal(t, "893413", result.Items[1].StatusNo)
	assert.Contains(t, result.Items[0].DetailURL, "/dp/detail.do?pktNo=893412")
}

func TestHTTPEngineSearchMaxPagesCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/dp/initializePublicQueryAction.do", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchFormPage)
	})
	// Every page links forward forever; the cap is the only exit.
	pages := 0
	serveEndless := func(w http.ResponseWriter, r *http.Request) {
		pages++
		offset := offsetFromQuery(r.URL.Query().Get("pager.offset"))
		fmt.Fprint(w, resultPage(offset+20, resultRow(fmt.Sprintf("%06d", offset), "LEASE")))
	}
	mux.HandleFunc("/dp/publicQueryAction.do", serveEndless)
	mux.HandleFunc("/dp/pagedResults.do", serveEndless)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	eng, err := NewHTTPEngine(Config{BaseURL: server.URL}, NewLimiter(0, 0), fixedClock{}, zap.NewNop())
	require.NoError(t, err)

	query := testQuery()
	query.MaxPages = 3
	result, err := eng.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 3, result.Count)
}

func offsetFromQuery(raw string) int {
	n := 0
	fmt.Sscanf(raw, "%d", &n)
	return n
}

func TestHTTPEngineSearchAuthRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Security Login</title></head><body>sign in</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	eng, err := NewHTTPEngine(Config{BaseURL: server.URL}, NewLimiter(0, 0), fixedClock{}, zap.NewNop())
	require.NoError(t, err)

	_, err = eng.Search(context.Background(), testQuery())
	require.ErrorIs(t, err, ErrAuthRedirect)
}

func TestHTTPEngineSearchEmptyResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/dp/initializePublicQueryAction.do", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchFormPage)
	})
	mux.HandleFunc("/dp/publicQueryAction.do", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Query Results</title></head><body>No permits matched.</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	eng, err := NewHTTPEngine(Config{BaseURL: server.URL}, NewLimiter(0, 0), fixedClock{}, zap.NewNop())
	require.NoError(t, err)

	result, err := eng.Search(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Equal(t, 1, result.Pages)
}
