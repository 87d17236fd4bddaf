package client_test

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/firasghr/GoClearance/challenge"
	"github.com/firasghr/GoClearance/client"
	"github.com/firasghr/GoClearance/config"
	"github.com/firasghr/GoClearance/metrics"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Delay = config.Duration(20 * time.Millisecond)
	cfg.RequestTimeout = config.Duration(10 * time.Second)
	return cfg
}

func challengePage(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("../challenge/testdata/iuam.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return b
}

// origin behaves like a protected site: it sets a session cookie with the
// challenge, checks the cookie on the answer, grants clearance and
// redirects back to the original page.
type origin struct {
	page       []byte
	encode     func([]byte) []byte
	encoding   string
	challenges int32
	answers    int32
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", "cloudflare")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/cdn-cgi/l/chk_jschl":
		atomic.AddInt32(&o.answers, 1)
		if _, err := r.Cookie("__cfduid"); err != nil {
			http.Error(w, "missing session cookie", http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "granted", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	case hasCookie(r, "cf_clearance"):
		io.WriteString(w, "protected content") //nolint:errcheck
	default:
		atomic.AddInt32(&o.challenges, 1)
		http.SetCookie(w, &http.Cookie{Name: "__cfduid", Value: "d1", Path: "/"})
		body := o.page
		if o.encode != nil {
			body = o.encode(body)
			w.Header().Set("Content-Encoding", o.encoding)
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(body) //nolint:errcheck
	}
}

func hasCookie(r *http.Request, name string) bool {
	_, err := r.Cookie(name)
	return err == nil
}

func TestClient_SolvesChallengeAndStoresClearance(t *testing.T) {
	o := &origin{page: challengePage(t)}
	srv := httptest.NewServer(o)
	defer srv.Close()

	m := metrics.NewMetrics()
	c, err := client.NewHTTPClient(testConfig(), client.WithMetrics(m))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	resp, err := c.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "protected content" {
		t.Fatalf("got %d %q, want 200 protected content", resp.StatusCode, body)
	}

	u, _ := url.Parse(srv.URL)
	if got := c.Clearance(u); got != "granted" {
		t.Errorf("Clearance: got %q, want granted", got)
	}

	// The clearance cookie is replayed, so no new challenge is served.
	resp, err = c.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	resp.Body.Close()
	if n := atomic.LoadInt32(&o.challenges); n != 1 {
		t.Errorf("challenges served: got %d, want 1", n)
	}
	if n := atomic.LoadInt32(&o.answers); n != 1 {
		t.Errorf("answers received: got %d, want 1", n)
	}
	if s := m.Snapshot(); s.Solved != 1 {
		t.Errorf("metrics: got %+v, want one solve", s)
	}
}

func TestClient_SolvesCompressedChallenge(t *testing.T) {
	for name, enc := range encoders() {
		o := &origin{page: challengePage(t), encode: enc, encoding: name}
		srv := httptest.NewServer(o)

		c, err := client.NewHTTPClient(testConfig())
		if err != nil {
			srv.Close()
			t.Fatalf("NewHTTPClient: %v", err)
		}
		resp, err := c.Get(srv.URL)
		srv.Close()
		if err != nil {
			t.Errorf("%s: Get: %v", name, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d, want 200", name, resp.StatusCode)
		}
	}
}

func TestClient_DecodesResponseBodies(t *testing.T) {
	want := bytes.Repeat([]byte("plain text "), 200)
	for name, enc := range encoders() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", name)
			w.Write(enc(want)) //nolint:errcheck
		}))
		c, _ := client.NewHTTPClient(testConfig())
		resp, err := c.Get(srv.URL)
		if err != nil {
			srv.Close()
			t.Fatalf("%s: Get: %v", name, err)
		}
		got, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		srv.Close()
		if err != nil {
			t.Errorf("%s: read: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: decoded %d bytes, want %d", name, len(got), len(want))
		}
		if ce := resp.Header.Get("Content-Encoding"); ce != "" {
			t.Errorf("%s: Content-Encoding still set to %q", name, ce)
		}
	}
}

func TestClient_UnknownEncodingPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "compress")
		io.WriteString(w, "raw") //nolint:errcheck
	}))
	defer srv.Close()

	c, _ := client.NewHTTPClient(testConfig())
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "raw" || resp.Header.Get("Content-Encoding") != "compress" {
		t.Errorf("got %q with encoding %q", got, resp.Header.Get("Content-Encoding"))
	}
}

func TestClient_CaptchaReturnsError(t *testing.T) {
	page, err := os.ReadFile("../challenge/testdata/captcha.html")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		w.Write(page) //nolint:errcheck
	}))
	defer srv.Close()

	c, _ := client.NewHTTPClient(testConfig())
	_, err = c.Get(srv.URL)
	if !errors.Is(err, challenge.ErrUnsupportedChallenge) {
		t.Errorf("got %v, want ErrUnsupportedChallenge through *url.Error", err)
	}
}

func TestClient_ChromeProfileOverTLS(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
	}))
	srv.EnableHTTP2 = true
	srv.TLS = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	srv.StartTLS()
	defer srv.Close()

	cfg := testConfig()
	cfg.Profile = "chrome"
	cfg.InsecureSkipVerify = true
	c, err := client.NewHTTPClient(cfg)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	r := <-seen
	if r.Proto != "HTTP/1.1" || r.TLS.NegotiatedProtocol != "http/1.1" {
		t.Errorf("got %s over ALPN %q, want HTTP/1.1", r.Proto, r.TLS.NegotiatedProtocol)
	}
}

func TestClient_HTTP2(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	cfg := testConfig()
	cfg.HTTP2 = true
	cfg.InsecureSkipVerify = true
	c, err := client.NewHTTPClient(cfg)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	r := <-seen
	if r.Proto != "HTTP/2.0" {
		t.Errorf("Proto: got %q, want HTTP/2.0", r.Proto)
	}
	if r.TLS.Version != tls.VersionTLS12 {
		t.Errorf("TLS version: got 0x%04x, want TLS 1.2", r.TLS.Version)
	}
}

func TestClient_TransportCustomizer(t *testing.T) {
	var called bool
	c, err := client.NewHTTPClient(testConfig(), client.WithTransportCustomizer(func(tr *http.Transport) {
		called = true
		if !tr.DisableCompression {
			t.Error("customizer should see the configured transport")
		}
	}))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if !called {
		t.Error("TransportCustomizer was not called")
	}
	if c.Settings().Delay != 20*time.Millisecond {
		t.Errorf("Delay: got %v, want the configured 20ms", c.Settings().Delay)
	}
}

func TestClient_WithSettings(t *testing.T) {
	c, err := client.NewHTTPClient(nil, client.WithSettings(challenge.Settings{Delay: time.Second}))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c.Settings().Delay != time.Second {
		t.Errorf("Delay: got %v, want 1s", c.Settings().Delay)
	}
}

func TestNewHTTPClient_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Profile = "chrome"
	cfg.Proxy = "http://127.0.0.1:3128"
	if _, err := client.NewHTTPClient(cfg); err == nil {
		t.Error("expected error for chrome profile behind a proxy")
	}

	cfg = testConfig()
	cfg.Proxy = "://bad-proxy"
	if _, err := client.NewHTTPClient(cfg); err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}

func TestClient_ClearanceUnknownHost(t *testing.T) {
	c, _ := client.NewHTTPClient(testConfig())
	u, _ := url.Parse("https://example.com/")
	if got := c.Clearance(u); got != "" {
		t.Errorf("Clearance: got %q, want empty", got)
	}
}

func encoders() map[string]func([]byte) []byte {
	return map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write(b) //nolint:errcheck
			w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			w.Write(b) //nolint:errcheck
			w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			w.Write(b) //nolint:errcheck
			w.Close()
			return buf.Bytes()
		},
		"zstd": func(b []byte) []byte {
			enc, _ := zstd.NewWriter(nil)
			defer enc.Close()
			return enc.EncodeAll(b, nil)
		},
	}
}
