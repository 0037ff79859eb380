// Package suppress parses GORACE-style suppression files and matches
// reported stacks/symbols against them, per spec.md §6's suppression-file
// syntax and §4.3/§4.7's "suppression applied before emission" rule.
//
// Each non-blank, non-comment line is one rule: a known prefix
// (obj:/src:/fun:/fun_r:/fun_hist:) followed by a glob pattern using the
// shell-style */? wildcards matched with path/filepath.Match, the same
// dialect ThreadSanitizer's suppression files use. An unrecognized prefix
// is a fatal parse error - suppression files are loaded once at startup,
// so failing loudly there is cheap and exactly what tsan's
// SuppressionParse does (Printf + Die on a bad line).
package suppress

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// Kind is the suppression rule category, named after its file prefix.
type Kind int

const (
	// Obj suppresses races whose accessing binary/shared-object name
	// matches the pattern (obj:).
	Obj Kind = iota
	// Src suppresses races whose source file matches the pattern (src:).
	Src
	// Fun suppresses races whose function name matches the pattern (fun:).
	Fun
	// FunR is Fun but matched against the reversed call stack - i.e. it
	// must match some frame at or below the top, not just the top frame
	// (fun_r:).
	FunR
	// FunHist suppresses a race if the pattern matches ANY frame anywhere
	// in the stack history, not just the top or a specific depth
	// (fun_hist:).
	FunHist
)

var prefixes = map[string]Kind{
	"obj:":      Obj,
	"src:":      Src,
	"fun:":      Fun,
	"fun_r:":    FunR,
	"fun_hist:": FunHist,
}

// Rule is one parsed suppression-file line.
type Rule struct {
	Kind    Kind
	Pattern string
}

// Rules is a parsed suppression file, ready for matching.
type Rules struct {
	rules []Rule
}

// ParseError reports a malformed suppression line. Suppression files are
// read at startup, never on the hot path, so a descriptive error costs
// nothing.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("suppressions: line %d: unrecognized prefix in %q (want obj:/src:/fun:/fun_r:/fun_hist:)", e.Line, e.Text)
}

// Parse reads a suppression file from r. Blank lines and lines starting
// with '#' are ignored. Every other line must start with one of the five
// known prefixes; anything else is a fatal ParseError, matching tsan's
// "unknown suppression type" Die().
func Parse(r io.Reader) (*Rules, error) {
	rules := &Rules{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		matched := false
		for prefix, kind := range prefixes {
			if strings.HasPrefix(line, prefix) {
				pattern := strings.TrimSpace(line[len(prefix):])
				rules.rules = append(rules.rules, Rule{Kind: kind, Pattern: pattern})
				matched = true
				break
			}
		}
		if !matched {
			return nil, &ParseError{Line: lineNo, Text: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// ParseString is a convenience wrapper around Parse for in-memory
// suppression text (the common case for the -suppressions=<string> option
// shape SPEC_FULL's Options.Suppressions takes).
func ParseString(s string) (*Rules, error) {
	return Parse(strings.NewReader(s))
}

// Match reports whether stack, funcName, or objName trip any loaded rule.
// stack frames are resolved to function names via runtime.CallersFrames
// only when a Fun/FunR/FunHist rule is present, since that is the
// expensive path and most suppression files have none.
func (r *Rules) Match(stack []uintptr, funcName, objName string) bool {
	if r == nil || len(r.rules) == 0 {
		return false
	}

	var frameNames []string
	needsFrames := false
	for _, rule := range r.rules {
		if rule.Kind == Fun || rule.Kind == FunR || rule.Kind == FunHist {
			needsFrames = true
			break
		}
	}
	if needsFrames && len(stack) > 0 {
		frames := runtime.CallersFrames(stack)
		for {
			frame, more := frames.Next()
			frameNames = append(frameNames, frame.Function)
			if !more {
				break
			}
		}
	}

	for _, rule := range r.rules {
		switch rule.Kind {
		case Obj:
			if globMatch(rule.Pattern, objName) {
				return true
			}
		case Src:
			if len(stack) > 0 {
				frames := runtime.CallersFrames(stack)
				frame, _ := frames.Next()
				if globMatch(rule.Pattern, frame.File) {
					return true
				}
			}
		case Fun:
			name := funcName
			if name == "" && len(frameNames) > 0 {
				name = frameNames[0]
			}
			if globMatch(rule.Pattern, name) {
				return true
			}
		case FunR:
			// Matched against any frame, walking from the top down -
			// the "reversed" stack tsan's fun_r rules scan.
			for _, name := range frameNames {
				if globMatch(rule.Pattern, name) {
					return true
				}
			}
		case FunHist:
			for _, name := range frameNames {
				if globMatch(rule.Pattern, name) {
					return true
				}
			}
		}
	}
	return false
}

// globMatch applies the */? wildcard dialect spec.md §6 specifies, via
// stdlib path/filepath.Match - no third-party glob library appears
// anywhere in the retrieval pack, and the dialect is exactly filepath's.
func globMatch(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
