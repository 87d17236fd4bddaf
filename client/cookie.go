package client

import (
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// cookieTransport attaches cookies from jar to every outgoing request and
// stores the cookies set by every response.  It sits below the challenge
// interceptor so the challenge hop and the answer submission share cookies,
// and so the clearance cookie on the final response reaches the jar.
type cookieTransport struct {
	jar  http.CookieJar
	next http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req
	if cookies := t.jar.Cookies(req.URL); len(cookies) > 0 {
		out = req.Clone(req.Context())
		for _, c := range cookies {
			out.AddCookie(c)
		}
	}
	resp, err := t.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if rc := resp.Cookies(); len(rc) > 0 {
		t.jar.SetCookies(req.URL, rc)
	}
	return resp, nil
}

// newCookieJar creates a cookie jar that honours the public-suffix list so
// cookies cannot be scoped to an effective top-level domain (e.g. .co.uk).
func newCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}
