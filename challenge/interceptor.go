// Package challenge detects and answers the reverse-proxy "I'm Under Attack
// Mode" JavaScript challenge.
//
// The package is a pipeline of small pure functions with one stateful edge:
//
//   - Classify / IsCandidate decide from status, Server header and body
//     whether a response is a challenge.
//   - ChallengeScript and Transform turn the challenge page into a snippet a
//     DOM-less jschallenge.Evaluator can run.
//   - ExtractFormParameters collects the hidden form fields and the answer.
//   - Interceptor is an http.RoundTripper that drives the cycle: send,
//     classify, extract, wait, submit the answer, return the final response.
//
// Cookies are not handled here.  The transport below the Interceptor is
// expected to carry a cookie store so the clearance cookie set on the final
// response is replayed on later requests.
package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firasghr/GoClearance/fingerprint"
	"github.com/firasghr/GoClearance/jschallenge"
	"github.com/firasghr/GoClearance/logger"
	"github.com/firasghr/GoClearance/metrics"
)

// drainLimit caps how much of an unread challenge body is discarded so the
// connection can go back to the pool.
const drainLimit = 64 << 10

// Interceptor answers challenges transparently for the requests passing
// through it.  It holds no per-request state and is safe for concurrent use.
type Interceptor struct {
	next     http.RoundTripper
	eval     jschallenge.Evaluator
	settings Settings
	profile  *fingerprint.Profile
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(i *Interceptor) { i.settings = s }
}

// WithProfile replaces the header profile applied to every outgoing request.
func WithProfile(p *fingerprint.Profile) Option {
	return func(i *Interceptor) {
		if p != nil {
			i.profile = p
		}
	}
}

// WithLogger sets the logger.  Without one the Interceptor is silent.
func WithLogger(l *logger.Logger) Option {
	return func(i *Interceptor) { i.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// NewInterceptor returns an Interceptor that sends requests through next
// (http.DefaultTransport when nil) and evaluates puzzles with ev
// (a jschallenge.Interpreter when nil).
func NewInterceptor(next http.RoundTripper, ev jschallenge.Evaluator, opts ...Option) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	if ev == nil {
		ev = jschallenge.NewInterpreter()
	}
	i := &Interceptor{
		next:     next,
		eval:     ev,
		settings: DefaultSettings(),
		profile:  fingerprint.IUAMProfile(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Settings returns the settings in effect.
func (i *Interceptor) Settings() Settings {
	return i.settings
}

// RoundTrip implements http.RoundTripper.  It returns the upstream response
// unchanged unless it is a JavaScript challenge, in which case it returns
// the response to the submitted answer.  CAPTCHA challenges and pages that
// cannot be solved produce an error and no follow-up request.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	id := uuid.NewString()
	i.metrics.IncrementTotal()

	out := req.Clone(req.Context())
	i.profile.ApplyToRequest(out)

	resp, err := i.next.RoundTrip(out)
	if err != nil {
		i.metrics.Record(metrics.OutcomeFailed)
		return nil, err
	}
	if !IsCandidate(resp.StatusCode, resp.Header.Get("Server")) {
		i.metrics.Record(metrics.OutcomePassthrough)
		return resp, nil
	}

	body, err := peekBody(resp)
	if err != nil {
		resp.Body.Close()
		i.metrics.Record(metrics.OutcomeFailed)
		return nil, fmt.Errorf("challenge: read response from %s: %w", req.URL.Host, err)
	}

	verdict := Classify(resp.StatusCode, resp.Header.Get("Server"), body)
	i.log.Debugf("[%s] %s %s: status %d classified as %s", id, req.Method, req.URL.Redacted(), resp.StatusCode, verdict)

	switch verdict {
	case Passthrough:
		i.metrics.Record(metrics.OutcomePassthrough)
		return resp, nil
	case UnsupportedChallenge:
		discard(resp.Body)
		i.metrics.Record(metrics.OutcomeUnsupported)
		i.log.Errorf("[%s] %s: CAPTCHA challenge, not attempted", id, req.URL.Host)
		return nil, fmt.Errorf("challenge for %s: %w", req.URL.Host, ErrUnsupportedChallenge)
	}

	start := time.Now()
	resp, err = i.solve(req, resp, body, id)
	if err != nil {
		i.metrics.Record(metrics.OutcomeFailed)
		i.log.Errorf("[%s] %s: %v", id, req.URL.Host, err)
		return nil, err
	}
	i.metrics.Record(metrics.OutcomeSolved)
	i.metrics.ObserveSolve(time.Since(start))
	i.log.Infof("[%s] %s: challenge answered in %s, status %d", id, req.URL.Host, time.Since(start).Round(time.Millisecond), resp.StatusCode)
	return resp, nil
}

// solve answers the challenge in resp.  The challenge body is released
// before the delay so no connection is held while waiting.
func (i *Interceptor) solve(req *http.Request, resp *http.Response, body, id string) (*http.Response, error) {
	page := Page{Scheme: req.URL.Scheme, Host: req.URL.Hostname(), Body: body}
	params, err := ExtractFormParameters(page, i.eval)
	discard(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("solving challenge for %s: %w", req.URL.Host, err)
	}
	i.log.Debugf("[%s] answer %s, waiting %s", id, params.JschlAnswer, i.settings.Delay)

	if err := sleep(req.Context(), i.settings.Delay); err != nil {
		return nil, err
	}

	follow, err := i.followUp(req, params)
	if err != nil {
		return nil, err
	}
	return i.next.RoundTrip(follow)
}

// followUp builds the answer submission: a POST to the action URL carrying
// the answer both in the query and in a form body.
func (i *Interceptor) followUp(req *http.Request, params FormParameters) (*http.Request, error) {
	u := params.URL(req.URL.Scheme, req.URL.Host)
	f, err := http.NewRequestWithContext(req.Context(), http.MethodPost, u.String(), strings.NewReader(params.Form()))
	if err != nil {
		return nil, fmt.Errorf("challenge: build follow-up request: %w", err)
	}
	i.profile.ApplyToRequest(f)
	f.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f, nil
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discard(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, drainLimit)) //nolint:errcheck
	body.Close()
}
