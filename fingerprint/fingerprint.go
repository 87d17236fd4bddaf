// Package fingerprint bundles the request signals a challenge proxy correlates
// when deciding whether a client looks like a browser.
//
// A mismatch between the TLS ClientHello, the User-Agent header and the rest
// of the header set is a reliable automation indicator, and on the proxies
// this client targets it escalates the JavaScript challenge to a CAPTCHA that
// cannot be solved.  A Profile keeps the three signals together and applies
// them consistently to every request and transport.
//
// # Profiles
//
//   - IUAMProfile is the default.  It sends the small fixed header set the
//     challenge solver was validated against and restricts the handshake to
//     TLS 1.2 with AES-128-GCM suites, which keeps the proxy on the
//     JavaScript challenge path.
//   - ChromeProfile mimics Chrome on Windows.  Its UTLS flag asks the client
//     package to dial with a uTLS Chrome ClientHello.
//   - FirefoxProfile mimics Firefox on Windows using crypto/tls.
//
// # Usage
//
//	p, err := fingerprint.Lookup("chrome")
//	p.ApplyToTransport(myTransport)
//	p.ApplyToRequest(req)
package fingerprint

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
)

// Profile bundles the correlated fingerprint signals:
//   - TLSConfig: controls the shape of the TLS ClientHello (JA3).
//   - UserAgent: the HTTP User-Agent header value.
//   - ExtraHeaders: additional headers (e.g. Accept, Accept-Language)
//     that browsers send to further increase fingerprint fidelity.
type Profile struct {
	// Name is the identifier accepted by Lookup.
	Name string

	// TLSConfig is applied to the http.Transport's TLSClientConfig.
	TLSConfig *tls.Config

	// UTLS requests a uTLS browser ClientHello instead of crypto/tls.  The
	// client package honours it by installing its UTLSDialer.
	UTLS bool

	// UserAgent is injected into every request as the "User-Agent" header.
	UserAgent string

	// ExtraHeaders contains additional static headers that should be sent
	// with every request, in the order they are defined.
	ExtraHeaders []Header
}

// Header is an ordered name-value pair for HTTP headers.
type Header struct {
	Name  string
	Value string
}

// IUAMUserAgent is the User-Agent of the default profile.
const IUAMUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/107.0.0.0 Safari/537.36 Edg/107.0.1418.42"

// IUAMProfile returns the default profile: Edge on Windows with the fixed
// header set, over TLS 1.2 only.
func IUAMProfile() *Profile {
	return &Profile{
		Name:      "iuam",
		TLSConfig: restrictedTLSConfig(),
		UserAgent: IUAMUserAgent,
		ExtraHeaders: []Header{
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		},
	}
}

// ChromeProfile returns a Profile that mimics a recent version of Google
// Chrome on Windows.
//
// Callers may modify the returned profile without affecting later calls.
func ChromeProfile() *Profile {
	return &Profile{
		Name:      "chrome",
		TLSConfig: chromeTLSConfig(),
		UTLS:      true,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/120.0.0.0 Safari/537.36",
		ExtraHeaders: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br, zstd"},
			{Name: "Sec-Ch-Ua", Value: `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
			{Name: "Sec-Ch-Ua-Mobile", Value: "?0"},
			{Name: "Sec-Ch-Ua-Platform", Value: `"Windows"`},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
		},
	}
}

// FirefoxProfile returns a Profile that mimics Mozilla Firefox 121 on Windows.
func FirefoxProfile() *Profile {
	return &Profile{
		Name:      "firefox",
		TLSConfig: firefoxTLSConfig(),
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) " +
			"Gecko/20100101 Firefox/121.0",
		ExtraHeaders: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-User", Value: "?1"},
		},
	}
}

// Lookup returns a fresh copy of the named profile.  The empty name selects
// IUAMProfile.
func Lookup(name string) (*Profile, error) {
	switch strings.ToLower(name) {
	case "", "iuam":
		return IUAMProfile(), nil
	case "chrome":
		return ChromeProfile(), nil
	case "firefox":
		return FirefoxProfile(), nil
	}
	return nil, fmt.Errorf("fingerprint: unknown profile %q", name)
}

// ApplyToTransport configures t's TLS settings from the profile.  Call this
// once when constructing the http.Transport.  It does not mutate any other
// transport fields.
func (p *Profile) ApplyToTransport(t *http.Transport) {
	if t == nil || p.TLSConfig == nil {
		return
	}
	t.TLSClientConfig = p.TLSConfig.Clone()
}

// ApplyToRequest sets the profile's User-Agent and ExtraHeaders on req,
// replacing any values already present.  Headers the profile does not name
// are left alone.
func (p *Profile) ApplyToRequest(req *http.Request) {
	if req == nil {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	for _, h := range p.ExtraHeaders {
		req.Header.Set(h.Name, h.Value)
	}
}

// restrictedTLSConfig pins TLS 1.2 and the ECDHE AES-128-GCM suites.
// Offering TLS 1.3 or a wider suite list from this User-Agent is what moves
// the proxy from the JavaScript challenge to a CAPTCHA.
func restrictedTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// chromeTLSConfig returns a *tls.Config whose cipher suite and version
// settings approximate Chrome 120.  With UTLS set the uTLS hello replaces
// it on the wire; it still governs certificate verification.
func chromeTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		// TLS 1.3 suites are fixed by crypto/tls, so only the 1.2 list is
		// configurable here.
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}

// firefoxTLSConfig returns a *tls.Config consistent with Firefox 121.
func firefoxTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}
}
