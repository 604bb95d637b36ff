package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult renders v as JSON (when --json is set) or via plain, the
// provided plain-text renderer, matching the non-goal that rules out
// colorized/TUI rendering but still wants a human-readable default.
func printResult(w io.Writer, v any, plain func()) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}

func fprintln(w io.Writer, a ...any) {
	fmt.Fprintln(w, a...)
}
