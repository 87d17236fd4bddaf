package challenge

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

const (
	// ServerToken prefixes the Server header of the challenge proxy.
	ServerToken = "cloudflare"
	// AnswerMarker appears in every JavaScript challenge form.
	AnswerMarker = "jschl_answer"
	// CaptchaMarker is the submit path of the CAPTCHA form.
	CaptchaMarker = "/cdn-cgi/l/chk_captcha"

	// MaxPeekBytes bounds how much of a candidate body is buffered for
	// classification.  Challenge pages are a few KiB.
	MaxPeekBytes = 2 << 20
)

// Classification is the verdict on one response.
type Classification int

const (
	Passthrough Classification = iota
	IUAMChallenge
	UnsupportedChallenge
)

func (c Classification) String() string {
	switch c {
	case Passthrough:
		return "passthrough"
	case IUAMChallenge:
		return "iuam"
	case UnsupportedChallenge:
		return "unsupported"
	}
	return "unknown"
}

// IsCandidate reports whether a response could be a challenge at all, using
// only its status and Server header.  Responses that are not candidates are
// passed through without touching the body.
func IsCandidate(status int, server string) bool {
	if !strings.HasPrefix(strings.ToLower(server), ServerToken) {
		return false
	}
	return status == http.StatusForbidden || (status >= 429 && status <= 503)
}

// Classify decides how a response is handled.
func Classify(status int, server, body string) Classification {
	if !IsCandidate(status, server) {
		return Passthrough
	}
	switch {
	case status >= 429 && status <= 503 && strings.Contains(body, AnswerMarker):
		return IUAMChallenge
	case status == http.StatusForbidden && strings.Contains(body, CaptchaMarker):
		return UnsupportedChallenge
	}
	return Passthrough
}

// peekBody reads up to MaxPeekBytes of resp.Body and replaces the body with
// one that replays those bytes before the unread remainder, so the caller
// still receives the complete stream.
func peekBody(resp *http.Response) (string, error) {
	head, err := io.ReadAll(io.LimitReader(resp.Body, MaxPeekBytes))
	if err != nil {
		return "", err
	}
	resp.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(head), resp.Body),
		Closer: resp.Body,
	}
	return string(head), nil
}

type replayBody struct {
	io.Reader
	io.Closer
}
