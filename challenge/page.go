package challenge

import (
	"net/url"
	"strings"
)

// Page is a challenge response as seen by the extractor.
type Page struct {
	Scheme string
	// Host is the bare hostname, without port, that the puzzle folds into
	// its arithmetic.
	Host string
	Body string
}

// FormParameters are the values submitted to answer a challenge.
// ActionPath, ActionQueryKey and ActionQueryValue come from the form action
// "path?key=value", split on its first '=' and then on the first '?'.
type FormParameters struct {
	R           string
	JschlVc     string
	Pass        string
	JschlAnswer string

	ActionPath       string
	ActionQueryKey   string
	ActionQueryValue string
}

// Query returns the follow-up query string.  The order is fixed (action
// key, jschl_vc, pass, jschl_answer); url.Values would sort it.
func (p FormParameters) Query() string {
	return encodeOrdered([][2]string{
		{p.ActionQueryKey, p.ActionQueryValue},
		{"jschl_vc", p.JschlVc},
		{"pass", p.Pass},
		{"jschl_answer", p.JschlAnswer},
	})
}

// Form returns the url-encoded follow-up body: r, jschl_vc, pass,
// jschl_answer.
func (p FormParameters) Form() string {
	return encodeOrdered([][2]string{
		{"r", p.R},
		{"jschl_vc", p.JschlVc},
		{"pass", p.Pass},
		{"jschl_answer", p.JschlAnswer},
	})
}

// URL returns the follow-up URL for the given scheme and host (host may
// include a port).
func (p FormParameters) URL(scheme, host string) *url.URL {
	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     p.ActionPath,
		RawQuery: p.Query(),
	}
}

func encodeOrdered(pairs [][2]string) string {
	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	return b.String()
}
