package jschallenge

import (
	"errors"
	"fmt"
	"time"

	"github.com/robertkrimen/otto"
)

// ErrTimeout is returned by OttoEvaluator.Eval when a script runs longer than
// the configured timeout.
var ErrTimeout = errors.New("jschallenge: evaluation timed out")

// OttoEvaluator implements Evaluator using the otto pure-Go JavaScript
// interpreter.  Each Eval call gets its own VM, so no state leaks between
// challenges and the evaluator is safe for concurrent use without locking.
type OttoEvaluator struct {
	// Timeout aborts scripts that run for longer.  Zero disables the limit.
	Timeout time.Duration
}

// NewOttoEvaluator returns an OttoEvaluator that interrupts scripts after
// timeout.
func NewOttoEvaluator(timeout time.Duration) *OttoEvaluator {
	return &OttoEvaluator{Timeout: timeout}
}

// Eval executes script in a fresh VM and returns the string representation of
// the value produced by the last expression.
func (e *OttoEvaluator) Eval(script string) (result string, err error) {
	vm := otto.New()

	if e.Timeout > 0 {
		// otto polls Interrupt between statements; the queued func panics
		// inside the VM goroutine and is recovered below.
		vm.Interrupt = make(chan func(), 1)
		timer := time.AfterFunc(e.Timeout, func() {
			vm.Interrupt <- func() { panic(ErrTimeout) }
		})
		defer timer.Stop()
	}
	defer func() {
		if r := recover(); r != nil {
			if r == ErrTimeout {
				result, err = "", ErrTimeout
				return
			}
			panic(r)
		}
	}()

	val, err := vm.Run(script)
	if err != nil {
		return "", fmt.Errorf("jschallenge: eval: %w", err)
	}
	result, err = val.ToString()
	if err != nil {
		return "", fmt.Errorf("jschallenge: convert result to string: %w", err)
	}
	return result, nil
}
