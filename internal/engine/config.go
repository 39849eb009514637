// Package engine implements the two interchangeable fetch engines for the
// permit search portal: a plain-HTTP path built on Colly and a headless
// browser path built on chromedp. Both satisfy permits.SearchEngine.
package engine

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default form field names used when label-proximity discovery finds nothing.
// The portal has kept these stable for years even while shuffling its markup.
const (
	DefaultBeginDateField = "searchArgs.submittedDtFrom"
	DefaultEndDateField   = "searchArgs.submittedDtTo"
	DefaultOffsetParam    = "pager.offset"
)

// Config controls both engines.
type Config struct {
	// BaseURL is the portal origin, e.g. "https://webapps.example.gov".
	BaseURL string
	// SearchFormPath serves the query form (cookies plus hidden tokens).
	SearchFormPath string
	// SubmitPath is the public results endpoint. The form's own action
	// sometimes bakes in a redirect through the login gateway; submissions
	// always go here instead.
	SubmitPath string

	BeginDateField string
	EndDateField   string
	OffsetParam    string

	UserAgent string
	Timeout   time.Duration
	// MaxPages caps pagination when the query does not supply its own cap.
	MaxPages int
	// LoginMarkers are lowercase substrings of the title or URL that signal
	// an authentication redirect rather than a results page.
	LoginMarkers []string

	// NavTimeout bounds each browser navigation (browser engine only).
	NavTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SearchFormPath == "" {
		c.SearchFormPath = "/dp/initializePublicQueryAction.do"
	}
	if c.SubmitPath == "" {
		c.SubmitPath = "/dp/publicQueryAction.do"
	}
	if c.BeginDateField == "" {
		c.BeginDateField = DefaultBeginDateField
	}
	if c.EndDateField == "" {
		c.EndDateField = DefaultEndDateField
	}
	if c.OffsetParam == "" {
		c.OffsetParam = DefaultOffsetParam
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 25
	}
	if len(c.LoginMarkers) == 0 {
		c.LoginMarkers = []string{"login", "sign in", "security/login"}
	}
	return c
}

// Validate enforces required values.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("engine.base_url invalid: %w", err)
	}
	if c.SearchFormPath == "" {
		return fmt.Errorf("engine.search_form_path is required")
	}
	if c.SubmitPath == "" {
		return fmt.Errorf("engine.submit_path is required")
	}
	return nil
}

func (c Config) formURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.SearchFormPath
}

func (c Config) submitURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.SubmitPath
}
