package challenge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firasghr/GoClearance/challenge"
	"github.com/firasghr/GoClearance/fingerprint"
	"github.com/firasghr/GoClearance/jschallenge"
	"github.com/firasghr/GoClearance/metrics"
)

const testDelay = 50 * time.Millisecond

// challengeServer serves the iuam.html challenge on every path until the
// answer is posted to the action URL.
type challengeServer struct {
	page     string
	requests int32

	mu        sync.Mutex
	followUps []*http.Request
	forms     []string
}

func (s *challengeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.requests, 1)
	w.Header().Set("Server", "cloudflare")
	if r.Method == http.MethodPost && r.URL.Path == "/cdn-cgi/l/chk_jschl" {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.followUps = append(s.followUps, r)
		s.forms = append(s.forms, string(body))
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "granted", Path: "/"})
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "welcome") //nolint:errcheck
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, s.page) //nolint:errcheck
}

func newInterceptor(srv *httptest.Server, opts ...challenge.Option) *challenge.Interceptor {
	opts = append([]challenge.Option{challenge.WithSettings(challenge.Settings{Delay: testDelay})}, opts...)
	return challenge.NewInterceptor(srv.Client().Transport, jschallenge.NewInterpreter(), opts...)
}

func TestInterceptor_SolvesChallenge(t *testing.T) {
	cs := &challengeServer{page: fixture(t, "iuam.html")}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	m := metrics.NewMetrics()
	c := &http.Client{Transport: newInterceptor(srv, challenge.WithMetrics(m))}

	start := time.Now()
	resp, err := c.Get(srv.URL + "/protected")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "welcome" {
		t.Errorf("final response: got %d %q, want 200 welcome", resp.StatusCode, body)
	}
	if elapsed < testDelay {
		t.Errorf("answer sent after %v, want at least %v", elapsed, testDelay)
	}
	if n := atomic.LoadInt32(&cs.requests); n != 2 {
		t.Fatalf("upstream requests: got %d, want 2", n)
	}

	follow := cs.followUps[0]
	// Host is 127.0.0.1, so the answer is 99 + 9.
	wantQuery := "__cf_chl_jschl_tk__=b1a2c3d4e5&jschl_vc=9c1b3e8d2f7a6c5b4e3d2c1b0a9f8e7d&pass=1571234571.123-AbCdEfGhIj&jschl_answer=108.0000000000"
	if follow.URL.RawQuery != wantQuery {
		t.Errorf("follow-up query:\n got %q\nwant %q", follow.URL.RawQuery, wantQuery)
	}
	wantForm := "r=4f0c1f5e2d7b8a9c-1571234567-0-250&jschl_vc=9c1b3e8d2f7a6c5b4e3d2c1b0a9f8e7d&pass=1571234571.123-AbCdEfGhIj&jschl_answer=108.0000000000"
	if cs.forms[0] != wantForm {
		t.Errorf("follow-up form:\n got %q\nwant %q", cs.forms[0], wantForm)
	}
	if ct := follow.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if ua := follow.Header.Get("User-Agent"); ua != fingerprint.IUAMUserAgent {
		t.Errorf("follow-up User-Agent: got %q, want %q", ua, fingerprint.IUAMUserAgent)
	}

	if s := m.Snapshot(); s.Solved != 1 || s.Total != 1 {
		t.Errorf("metrics: got %+v, want one solved request", s)
	}
}

func TestInterceptor_CaptchaIsNotAttempted(t *testing.T) {
	var requests int32
	page := fixture(t, "captcha.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, page) //nolint:errcheck
	}))
	defer srv.Close()

	m := metrics.NewMetrics()
	c := &http.Client{Transport: newInterceptor(srv, challenge.WithMetrics(m))}
	resp, err := c.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected ErrUnsupportedChallenge")
	}
	if !errors.Is(err, challenge.ErrUnsupportedChallenge) {
		t.Errorf("got %v, want ErrUnsupportedChallenge", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("upstream requests: got %d, want 1", n)
	}
	if s := m.Snapshot(); s.Unsupported != 1 {
		t.Errorf("metrics: got %+v, want one unsupported", s)
	}
}

func TestInterceptor_Passthrough(t *testing.T) {
	cases := []struct {
		name   string
		status int
		server string
		body   string
	}{
		{"ok", http.StatusOK, "cloudflare", "hello jschl_answer"},
		{"not found", http.StatusNotFound, "cloudflare", "missing"},
		{"origin 503", http.StatusServiceUnavailable, "nginx", "jschl_answer"},
		{"cloudflare 503 without form", http.StatusServiceUnavailable, "cloudflare", "origin down"},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", c.server)
			w.WriteHeader(c.status)
			io.WriteString(w, c.body) //nolint:errcheck
		}))
		resp, err := (&http.Client{Transport: newInterceptor(srv)}).Get(srv.URL)
		if err != nil {
			srv.Close()
			t.Fatalf("%s: Get: %v", c.name, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		srv.Close()
		if resp.StatusCode != c.status || string(body) != c.body {
			t.Errorf("%s: got %d %q, want %d %q", c.name, resp.StatusCode, body, c.status, c.body)
		}
	}
}

func TestInterceptor_LargeBodyIsReplayedWhole(t *testing.T) {
	big := bytes.Repeat([]byte("0123456789abcdef"), (challenge.MaxPeekBytes/16)+4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusBadGateway)
		w.Write(big) //nolint:errcheck
	}))
	defer srv.Close()

	resp, err := (&http.Client{Transport: newInterceptor(srv)}).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, big) {
		t.Errorf("body length: got %d, want %d", len(got), len(big))
	}
}

func TestInterceptor_CancelDuringDelay(t *testing.T) {
	cs := &challengeServer{page: fixture(t, "iuam.html")}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	ic := challenge.NewInterceptor(srv.Client().Transport, jschallenge.NewInterpreter(),
		challenge.WithSettings(challenge.Settings{Delay: 10 * time.Second}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	start := time.Now()
	_, err := ic.RoundTrip(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if n := atomic.LoadInt32(&cs.requests); n != 1 {
		t.Errorf("upstream requests: got %d, want 1 (no follow-up after cancel)", n)
	}
}

func TestInterceptor_ExtractionFailureIsTerminal(t *testing.T) {
	cs := &challengeServer{page: strings.Replace(fixture(t, "iuam.html"), `name="r"`, `name="q"`, 1)}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	_, err := newInterceptor(srv).RoundTrip(httptestRequest(t, srv.URL))
	var fnf *challenge.FieldNotFoundError
	if !errors.As(err, &fnf) || fnf.Name != "r" {
		t.Errorf("got %v, want FieldNotFoundError for r", err)
	}
	if n := atomic.LoadInt32(&cs.requests); n != 1 {
		t.Errorf("upstream requests: got %d, want 1", n)
	}
}

func TestInterceptor_AppliesHeaderProfile(t *testing.T) {
	var gotUA, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Trace")
	}))
	defer srv.Close()

	req := httptestRequest(t, srv.URL)
	req.Header.Set("User-Agent", "Go-http-client/1.1")
	req.Header.Set("X-Trace", "abc")
	resp, err := newInterceptor(srv, challenge.WithProfile(fingerprint.FirefoxProfile())).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if gotUA != fingerprint.FirefoxProfile().UserAgent {
		t.Errorf("User-Agent: got %q, want the profile's", gotUA)
	}
	if gotCustom != "abc" {
		t.Errorf("X-Trace: got %q, want abc", gotCustom)
	}
	if req.Header.Get("User-Agent") != "Go-http-client/1.1" {
		t.Error("RoundTrip modified the caller's request")
	}
}

func TestInterceptor_ConcurrentChallenges(t *testing.T) {
	cs := &challengeServer{page: fixture(t, "iuam_cfdn.html")}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	ic := newInterceptor(srv)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		req := httptestRequest(t, srv.URL)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ic.RoundTrip(req)
			if err != nil {
				t.Errorf("RoundTrip: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.followUps) != 8 {
		t.Fatalf("follow-ups: got %d, want 8", len(cs.followUps))
	}
	for _, f := range cs.followUps {
		// 43 + len("127.0.0.1")
		if got := f.URL.Query().Get("jschl_answer"); got != "52.0000000000" {
			t.Errorf("jschl_answer: got %q, want 52.0000000000", got)
		}
	}
}

func httptestRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}
