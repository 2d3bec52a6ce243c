package executor

import (
	"regexp"
	"strings"
)

// Class is the presentation category of an output line.
type Class int

const (
	ClassPlain Class = iota
	ClassError
	ClassWarning
)

var errorPatterns = [...]*regexp.Regexp{
	regexp.MustCompile(`(?i)error:`),
	regexp.MustCompile(`(?i)fatal:`),
	regexp.MustCompile(`(?i)undefined reference`),
	regexp.MustCompile(`(?i)cannot find`),
}

var warningPatterns = [...]*regexp.Regexp{
	regexp.MustCompile(`(?i)warning:`),
	regexp.MustCompile(`(?i)deprecated`),
}

func matchAny(patterns []*regexp.Regexp, line string) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Classify checks error patterns before warning patterns. It only decides
// how a line is shown.
func Classify(line string) Class {
	switch {
	case matchAny(errorPatterns[:], line):
		return ClassError
	case matchAny(warningPatterns[:], line):
		return ClassWarning
	}
	return ClassPlain
}

// extractErrors returns the distinct error lines of output, trimmed, in order
// of first appearance.
func extractErrors(output string) []string {
	var errs []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		if !matchAny(errorPatterns[:], line) {
			continue
		}
		line = strings.TrimSpace(line)
		if seen[line] {
			continue
		}
		seen[line] = true
		errs = append(errs, line)
	}
	return errs
}
