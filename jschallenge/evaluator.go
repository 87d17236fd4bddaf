// Package jschallenge evaluates the arithmetic puzzles embedded in
// anti-bot challenge pages without a browser.
//
// Challenge puzzles are small scripts built from JSFuck-style coercions
// (`+((!+[]+!![]+[])+(+!![]))`), a mutable accumulator object and a final
// toFixed call.  They need JavaScript's coercion and number-formatting rules
// to the bit, but nothing else a browser offers.
//
// Architecture:
//   - Evaluator is the public interface; callers supply a script and receive
//     the string form of its completion value.
//   - Interpreter is the default implementation: a capability-free lexer,
//     recursive-descent parser and tree-walking interpreter for the narrow
//     subset of JavaScript the puzzles use.  It keeps no state between calls
//     and is therefore safe for concurrent use.
//   - OttoEvaluator wraps the otto pure-Go interpreter for challenge variants
//     that step outside that subset.
//   - EvaluatorFunc adapts a plain function, mostly for tests.
package jschallenge

import "fmt"

// Evaluator is the interface implemented by all script engines.
type Evaluator interface {
	// Eval executes script and returns the string representation of the
	// final expression value.  Returns an error on syntax or runtime errors;
	// implementations never return a best-guess value alongside an error.
	Eval(script string) (string, error)
}

// EvaluatorFunc lets an ordinary function act as an Evaluator.
type EvaluatorFunc func(script string) (string, error)

// Eval calls f(script).
func (f EvaluatorFunc) Eval(script string) (string, error) {
	return f(script)
}

// ErrorKind mirrors the JavaScript error constructor a failure corresponds to.
type ErrorKind string

const (
	SyntaxError    ErrorKind = "SyntaxError"
	ReferenceError ErrorKind = "ReferenceError"
	TypeError      ErrorKind = "TypeError"
	RangeError     ErrorKind = "RangeError"
)

// Error is returned by Interpreter.Eval for every parse or runtime failure.
type Error struct {
	Kind    ErrorKind
	Message string
	// Offset is the byte offset into the script for syntax errors, or -1.
	Offset int
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("jschallenge: %s: %s (offset %d)", e.Kind, e.Message, e.Offset)
	}
	return fmt.Sprintf("jschallenge: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: -1}
}

func syntaxError(offset int, format string, args ...interface{}) *Error {
	return &Error{Kind: SyntaxError, Message: fmt.Sprintf(format, args...), Offset: offset}
}
