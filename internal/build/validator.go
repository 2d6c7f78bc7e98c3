// Package build validates the generated component by building the app project.
//
// A Validator never retries and never returns a Go error: anything that
// prevents a clean build, including a missing toolchain, is reported as a
// failed Result carrying the diagnostic text the user should see.
package build

import "context"

// Result is the outcome of one validation.
type Result struct {
	OK         bool
	Diagnostic string
}

// Success returns a passing result.
func Success() Result {
	return Result{OK: true}
}

// Failure returns a failing result with the given diagnostic.
func Failure(diagnostic string) Result {
	return Result{Diagnostic: diagnostic}
}

// Validator builds the project that contains the artifact.
type Validator interface {
	Validate(ctx context.Context) Result
}

// Func adapts a function to the Validator interface.
type Func func(ctx context.Context) Result

// Validate calls f.
func (f Func) Validate(ctx context.Context) Result {
	return f(ctx)
}
