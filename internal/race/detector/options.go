package detector

import (
	"fmt"
	"strconv"
	"strings"
)

// Options holds the GORACE-style runtime configuration spec.md §6 lists.
// Field names match the environment-variable keys GORACE uses, so
// ParseOptions's job is purely mechanical key=value splitting plus type
// coercion - the same shape as the real race detector's GORACE string.
type Options struct {
	// PureHappensBefore disables the fast epoch-only path and always
	// checks full vector clocks. Useful for debugging the detector
	// itself, never set in production.
	PureHappensBefore bool
	// FastMode keeps the default adaptive epoch/vector-clock behavior;
	// present so "fast_mode=0" can force PureHappensBefore-equivalent
	// behavior without a separate flag name mismatch against GORACE.
	FastMode bool
	// IgnoreInDtor suppresses races whose access happens inside a
	// destructor/finalizer-equivalent (Go: a runtime.SetFinalizer
	// callback), matching tsan's ignore_in_dtor.
	IgnoreInDtor bool
	// NumCallers bounds how many stack frames are captured per access
	// when a report is eventually built.
	NumCallers int
	// LiteRaceSampling, when > 0, checks only a 1-in-N sample of accesses
	// to a given shadow cell's "hot" classification, trading recall for
	// throughput exactly as tsan's "lite race" mode does.
	LiteRaceSampling int
	// Suppressions is inline suppression-rule text (not a file path -
	// the engine has no filesystem dependency at this layer; a front end
	// reads the file and passes its contents here).
	Suppressions string
	// GenerateSuppressions prints ready-to-use suppression lines for
	// every race found, instead of (or in addition to) the normal report.
	GenerateSuppressions bool
	// ErrorExitcode is the process exit code to use if any race was
	// reported and the front end asks the engine for one, per spec.md §7.
	ErrorExitcode int
	// MaxMemInMB caps the engine's own bookkeeping memory; 0 means no
	// cap enforced by this layer (the allocator/front end may cap it
	// independently).
	MaxMemInMB int
	// ExitAfterMain stops tracking new threads/accesses once main()
	// returns, matching tsan's exitcode-on-main-return convenience flag.
	ExitAfterMain bool
}

// DefaultOptions returns the engine's built-in defaults, matching
// ThreadSanitizer's documented GORACE defaults where spec.md doesn't
// override them.
func DefaultOptions() Options {
	return Options{
		FastMode:      true,
		NumCallers:    32,
		ErrorExitcode: 66,
	}
}

// ParseOptions parses a GORACE-style options string: space-separated
// key=value pairs, e.g. "halt_on_error=1 history_size=7". Unknown keys
// are ignored (matching GORACE's own forward-compatible behavior of
// warning, not failing, on unrecognized options) rather than treated as
// a suppression-file-style fatal parse error - this is a tuning knob
// string, not a suppression rule list, and spec.md §7 only specifies a
// fatal abort for suppression-file syntax errors.
func ParseOptions(s string) (Options, error) {
	opts := DefaultOptions()
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}

	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return opts, fmt.Errorf("detector: malformed option %q (want key=value)", field)
		}

		var err error
		switch key {
		case "pure_happens_before":
			opts.PureHappensBefore, err = parseBool(value)
		case "fast_mode":
			opts.FastMode, err = parseBool(value)
		case "ignore_in_dtor":
			opts.IgnoreInDtor, err = parseBool(value)
		case "num_callers":
			opts.NumCallers, err = strconv.Atoi(value)
		case "literace_sampling":
			opts.LiteRaceSampling, err = strconv.Atoi(value)
		case "suppressions":
			opts.Suppressions = value
		case "generate_suppressions":
			opts.GenerateSuppressions, err = parseBool(value)
		case "error_exitcode":
			opts.ErrorExitcode, err = strconv.Atoi(value)
		case "max_mem_in_mb":
			opts.MaxMemInMB, err = strconv.Atoi(value)
		case "exit_after_main":
			opts.ExitAfterMain, err = parseBool(value)
		default:
			// Unknown option: forward-compatible no-op, matching GORACE.
			continue
		}
		if err != nil {
			return opts, fmt.Errorf("detector: option %q: %w", field, err)
		}
	}

	return opts, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", s)
	}
}
