package challenge

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/firasghr/GoClearance/jschallenge"
)

var (
	// wrapperPattern isolates the puzzle: everything inside the setTimeout
	// callback up to and including the final toFixed call.
	wrapperPattern = regexp.MustCompile(`(?s)setTimeout\(\s*function\s*\(\s*\)\s*\{(.+?toFixed\(\d{1,2}\))`)

	// hostPattern matches the statements that derive the hostname from a
	// detached <a> element.  They end at the first "-1);", which trims the
	// trailing slash.
	hostPattern = regexp.MustCompile(`(?s)\bt\s*=\s*document\.createElement.+?-1\);`)

	// domReadPattern matches the reads of the answer input (a) and the form
	// (f).  The puzzle writes a.value, which the accumulator stub provides.
	domReadPattern = regexp.MustCompile(`\b[af]\s*=\s*document\.[^;]*;`)

	// hiddenDivPattern matches the cf-dn-* div some variants read through
	// document.getElementById(k).innerHTML.
	hiddenDivPattern = regexp.MustCompile(`(?s)id="cf-dn[^"]*"[^>]*>(.+?)</div>`)
)

const (
	accumulatorStub = "var a = {value: 0.0};\n"
	resultStatement = ";\na.value;"
)

// ChallengeScript returns the text of the first inline <script> in body that
// contains the puzzle wrapper.  Scripts with a src attribute are skipped.
// A token longer than MaxPeekBytes ends the search with
// ErrUnrecognizedScriptFormat.
func ChallengeScript(body string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(body))
	z.SetMaxBuf(MaxPeekBytes)
	inScript, external := false, false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("%w: %v", ErrUnrecognizedScriptFormat, err)
			}
			return "", ErrUnrecognizedScriptFormat
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" {
				continue
			}
			inScript, external = true, false
			for hasAttr {
				var key []byte
				key, _, hasAttr = z.TagAttr()
				if string(key) == "src" {
					external = true
				}
			}
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript || external {
				continue
			}
			if text := string(z.Text()); wrapperPattern.MatchString(text) {
				return text, nil
			}
		}
	}
}

// Transform rewrites a raw challenge script into a self-contained snippet
// whose completion value is the answer.  host is folded in where the script
// would read it from the document, and body is searched for the hidden
// cf-dn div.  Transform is pure: the same input always yields the same
// output.
func Transform(script, host, body string) (string, error) {
	m := wrapperPattern.FindStringSubmatch(script)
	if m == nil {
		return "", ErrUnrecognizedScriptFormat
	}
	puzzle := hostPattern.ReplaceAllLiteralString(m[1], "t = "+jschallenge.Quote(host)+";")
	puzzle = domReadPattern.ReplaceAllLiteralString(puzzle, "")

	var b strings.Builder
	if d := hiddenDivPattern.FindStringSubmatch(body); d != nil {
		b.WriteString("var document = {getElementById: function(id) {return {innerHTML: ")
		b.WriteString(jschallenge.Quote(d[1]))
		b.WriteString("};}};\n")
	}
	b.WriteString(accumulatorStub)
	b.WriteString(puzzle)
	b.WriteString(resultStatement)
	return b.String(), nil
}
