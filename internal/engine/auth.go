package engine

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrAuthRedirect signals that the portal bounced the request through its
// login gateway. It is an expected condition, not a crash: the caller reacts
// by switching engines.
var ErrAuthRedirect = errors.New("search redirected to authentication page")

// looksLikeLogin inspects a fetched page's title and final URL for login
// markers. The portal serves the login page with HTTP 200, so status codes
// carry no signal here.
func looksLikeLogin(doc *goquery.Document, finalURL string, markers []string) bool {
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	lowURL := strings.ToLower(finalURL)
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(title, marker) || strings.Contains(lowURL, marker) {
			return true
		}
	}
	return false
}
