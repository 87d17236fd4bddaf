// Package client builds the *http.Client that answers challenges
// transparently.
//
// Requests flow through a chain of round trippers:
//
//	challenge.Interceptor → cookieTransport → decodeTransport → *http.Transport
//
// The Interceptor sees every hop (the original request and the answer
// submission), the cookie transport keeps the cookie store in step with both
// hops, and the decode transport hands the Interceptor plain text whatever
// Content-Encoding the header profile advertised.
package client

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"

	"github.com/firasghr/GoClearance/challenge"
	"github.com/firasghr/GoClearance/config"
	"github.com/firasghr/GoClearance/fingerprint"
	"github.com/firasghr/GoClearance/jschallenge"
	"github.com/firasghr/GoClearance/logger"
	"github.com/firasghr/GoClearance/metrics"
)

// ClearanceCookie is the cookie the proxy sets once a challenge is answered.
const ClearanceCookie = "cf_clearance"

// HTTP/2 SETTINGS values sent by Chrome.
const (
	h2HeaderTableSize   uint32 = 65536
	h2MaxHeaderListSize uint32 = 262144
)

// Client is an *http.Client whose transport answers challenges.  It is safe
// for concurrent use.
type Client struct {
	*http.Client

	jar         http.CookieJar
	interceptor *challenge.Interceptor
}

// Option customises NewHTTPClient.
type Option func(*options)

type options struct {
	log        *logger.Logger
	metrics    *metrics.Metrics
	eval       jschallenge.Evaluator
	jar        http.CookieJar
	settings   *challenge.Settings
	customizer func(*http.Transport)
}

// WithLogger passes l to the challenge interceptor.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics passes m to the challenge interceptor.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEvaluator overrides the evaluator selected by Config.Engine.
func WithEvaluator(ev jschallenge.Evaluator) Option {
	return func(o *options) { o.eval = ev }
}

// WithJar replaces the default public-suffix aware cookie jar.
func WithJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// WithSettings overrides the settings derived from Config.
func WithSettings(s challenge.Settings) Option {
	return func(o *options) { o.settings = &s }
}

// WithTransportCustomizer sets Settings.TransportCustomizer, keeping the rest
// of the settings.
func WithTransportCustomizer(fn func(*http.Transport)) Option {
	return func(o *options) { o.customizer = fn }
}

// NewHTTPClient constructs a Client from cfg (DefaultConfig when nil).
//
// The http.Client's own Jar is left nil: cookies are handled inside the
// transport chain so that the answer submission, which never passes through
// http.Client, still carries and stores cookies.  Redirects are followed by
// http.Client as usual, and every redirect hop goes through the chain.
func NewHTTPClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	profile, err := fingerprint.Lookup(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	settings := cfg.Settings()
	if o.settings != nil {
		settings = *o.settings
	}
	if o.customizer != nil {
		settings.TransportCustomizer = o.customizer
	}

	transport, err := buildTransport(cfg, profile, settings)
	if err != nil {
		return nil, err
	}

	jar := o.jar
	if jar == nil {
		if jar, err = newCookieJar(); err != nil {
			return nil, fmt.Errorf("client: create cookie jar: %w", err)
		}
	}
	ev := o.eval
	if ev == nil {
		ev = cfg.Evaluator()
	}

	chain := &cookieTransport{jar: jar, next: &decodeTransport{next: transport}}
	ic := challenge.NewInterceptor(chain, ev,
		challenge.WithSettings(settings),
		challenge.WithProfile(profile),
		challenge.WithLogger(o.log),
		challenge.WithMetrics(o.metrics),
	)

	return &Client{
		Client: &http.Client{
			Transport: ic,
			Timeout:   cfg.RequestTimeout.Std(),
		},
		jar:         jar,
		interceptor: ic,
	}, nil
}

// Cookies returns the cookies the client would send to u.
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	return c.jar.Cookies(u)
}

// Clearance returns the clearance cookie value stored for u, or "" if the
// origin has not granted one.
func (c *Client) Clearance(u *url.URL) string {
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == ClearanceCookie {
			return ck.Value
		}
	}
	return ""
}

// Settings returns the challenge settings in effect.
func (c *Client) Settings() challenge.Settings {
	return c.interceptor.Settings()
}

// buildTransport creates the base *http.Transport.  Pool sizing comes from
// cfg, TLS from the profile, and the settings' customizer runs last.
func buildTransport(cfg *config.Config, profile *fingerprint.Profile, settings challenge.Settings) (*http.Transport, error) {
	t := &http.Transport{
		DisableKeepAlives: false,

		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,

		// Evict idle connections after 90 s so we do not hold dead sockets.
		IdleConnTimeout: 90 * time.Second,

		// TLS handshakes that stall for more than 10 s are aborted.
		TLSHandshakeTimeout: 10 * time.Second,

		ExpectContinueTimeout: 1 * time.Second,

		// decodeTransport handles every encoding the profile advertises.
		DisableCompression: true,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("client: parse proxy URL %q: %w", cfg.Proxy, err)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}

	profile.ApplyToTransport(t)
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	if cfg.InsecureSkipVerify {
		t.TLSClientConfig.InsecureSkipVerify = true // #nosec G402 – opt-in for test origins
	}

	switch {
	case profile.UTLS:
		t.DialTLSContext = UTLSDialerHTTP1(utls.HelloChrome_Auto, t.TLSClientConfig)
	case cfg.HTTP2:
		h2, err := http2.ConfigureTransports(t)
		if err != nil {
			return nil, fmt.Errorf("client: configure http2: %w", err)
		}
		h2.MaxDecoderHeaderTableSize = h2HeaderTableSize
		h2.MaxHeaderListSize = h2MaxHeaderListSize
	}

	if settings.TransportCustomizer != nil {
		settings.TransportCustomizer(t)
	}
	return t, nil
}
