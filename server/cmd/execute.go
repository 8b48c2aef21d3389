package cmd

import (
	"strings"
)

// ParseLine splits a raw command line into its root label and the arguments
// that follow it. The leading slash is optional and stripped. Runs of
// whitespace separate arguments. ok is false for a blank line or a lone
// slash.
func ParseLine(line string) (label string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "/")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// SplitPartial splits a partially typed line for completion. Unlike ParseLine
// a trailing space is significant: it starts a new, empty token so that
// completion suggests the next argument instead of finishing the last one.
// The leading slash and label are kept as the first token.
func SplitPartial(line string) []string {
	line = strings.TrimLeft(line, " \t")
	return partialFields(strings.TrimPrefix(line, "/"))
}

func partialFields(line string) []string {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
		tokens = append(tokens, "")
	}
	return tokens
}
