package challenge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/firasghr/GoClearance/jschallenge"
)

var (
	rPattern      = regexp.MustCompile(`name="r"\s+value="([^"]*)"`)
	passPattern   = regexp.MustCompile(`name="pass"\s+value="([^"]*)"`)
	vcNameFirst   = regexp.MustCompile(`name="jschl_vc"\s+value="([^"]*)"`)
	vcValueFirst  = regexp.MustCompile(`value="([^"]*)"[^>]*?name="jschl_vc"`)
	actionPattern = regexp.MustCompile(`action="([^"]+)"`)
)

// ExtractFormParameters pulls the hidden fields and form action out of page
// and computes the answer with ev.  Either every field is returned or an
// error is: *FieldNotFoundError, ErrActionMalformed,
// ErrUnrecognizedScriptFormat or *ScriptEvaluationError.
func ExtractFormParameters(page Page, ev jschallenge.Evaluator) (FormParameters, error) {
	var p FormParameters

	r, ok := attribute(page.Body, rPattern)
	if !ok {
		return p, &FieldNotFoundError{Name: "r"}
	}
	vc, ok := jschlVc(page.Body)
	if !ok {
		return p, &FieldNotFoundError{Name: "jschl_vc"}
	}
	pass, ok := attribute(page.Body, passPattern)
	if !ok {
		return p, &FieldNotFoundError{Name: "pass"}
	}
	action, ok := attribute(page.Body, actionPattern)
	if !ok {
		return p, &FieldNotFoundError{Name: "action"}
	}
	left, queryValue, ok := strings.Cut(action, "=")
	if !ok {
		return p, ErrActionMalformed
	}
	path, queryKey, ok := strings.Cut(left, "?")
	if !ok {
		return p, ErrActionMalformed
	}

	answer, err := solve(page, ev)
	if err != nil {
		return p, err
	}

	return FormParameters{
		R:                r,
		JschlVc:          vc,
		Pass:             pass,
		JschlAnswer:      answer,
		ActionPath:       path,
		ActionQueryKey:   queryKey,
		ActionQueryValue: queryValue,
	}, nil
}

func solve(page Page, ev jschallenge.Evaluator) (string, error) {
	script, err := ChallengeScript(page.Body)
	if err != nil {
		return "", err
	}
	snippet, err := Transform(script, page.Host, page.Body)
	if err != nil {
		return "", err
	}
	answer, err := ev.Eval(snippet)
	if err != nil {
		return "", &ScriptEvaluationError{Err: err}
	}
	f, err := strconv.ParseFloat(answer, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &ScriptEvaluationError{Err: fmt.Errorf("answer %q is not a finite number", answer)}
	}
	return answer, nil
}

// attribute returns the first capture of re in body with &amp; decoded.
// Other entities are left alone so query text such as "&copy=1" survives.
func attribute(body string, re *regexp.Regexp) (string, bool) {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], "&amp;", "&"), true
}

// jschlVc accepts either attribute order and prefers a non-empty value.
func jschlVc(body string) (string, bool) {
	a, okA := attribute(body, vcNameFirst)
	if a != "" {
		return a, true
	}
	b, okB := attribute(body, vcValueFirst)
	if b != "" {
		return b, true
	}
	return "", okA || okB
}
