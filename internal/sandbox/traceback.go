package sandbox

import (
	"regexp"
	"strings"
)

const maxTracebackBytes = 8 << 10

var (
	// Final line of a CPython traceback: "KeyError: 'revenue'".
	excLineRe = regexp.MustCompile(`(?m)^([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception|Exit|Interrupt))\s*(?::\s*(.*))?$`)
	// Quoted or word-like names inside exception messages.
	quotedNameRe = regexp.MustCompile(`['"]([A-Za-z_][A-Za-z0-9_ .-]*)['"]`)
	nameIsNotRe  = regexp.MustCompile(`name '([^']+)' is not defined`)
)

// parseTraceback extracts the structured error from interpreter stderr.
// Returns nil if no exception line is present.
func parseTraceback(stderr string) *CodeError {
	matches := excLineRe.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	last := matches[len(matches)-1]
	ce := &CodeError{Kind: last[1]}
	if len(last) > 2 {
		ce.Message = strings.TrimSpace(last[2])
	}
	ce.Identifier = extractIdentifier(ce.Kind, ce.Message)

	tb := stderr
	if idx := strings.Index(stderr, "Traceback (most recent call last):"); idx >= 0 {
		tb = stderr[idx:]
	}
	if len(tb) > maxTracebackBytes {
		tb = tb[len(tb)-maxTracebackBytes:]
	}
	ce.Traceback = strings.TrimSpace(tb)
	return ce
}

// extractIdentifier pulls the offending name out of common exception
// messages: KeyError('X'), NameError("name 'x' is not defined"),
// AttributeError("... has no attribute 'y'").
func extractIdentifier(kind, msg string) string {
	if msg == "" {
		return ""
	}
	if m := nameIsNotRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := quotedNameRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}
