package eventlog

import (
	"fmt"
	"strings"
)

// Subjects are dot-separated tokens. In patterns "*" matches exactly one token
// and a trailing ">" matches one or more remaining tokens.

// ValidateSubjectPattern checks a stream subject or consumer filter.
func ValidateSubjectPattern(p string) error {
	return validateSubject(p, true)
}

// ValidateSubject checks a literal publish subject.
func ValidateSubject(s string) error {
	return validateSubject(s, false)
}

func validateSubject(s string, wildcards bool) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, s)
	}
	toks := strings.Split(s, ".")
	for i, t := range toks {
		switch {
		case t == "":
			return fmt.Errorf("%w: empty token in %q", ErrInvalidSubject, s)
		case t == "*" || t == ">":
			if !wildcards {
				return fmt.Errorf("%w: wildcard in %q", ErrInvalidSubject, s)
			}
			if t == ">" && i != len(toks)-1 {
				return fmt.Errorf("%w: '>' must be last in %q", ErrInvalidSubject, s)
			}
		case strings.ContainsAny(t, "*>"):
			return fmt.Errorf("%w: partial wildcard in %q", ErrInvalidSubject, s)
		}
	}
	return nil
}

// SubjectMatches reports whether a literal subject matches a pattern. An empty
// pattern matches everything.
func SubjectMatches(pattern, subject string) bool {
	if pattern == "" {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

func matchesAny(patterns []string, subject string) bool {
	for _, p := range patterns {
		if SubjectMatches(p, subject) {
			return true
		}
	}
	return false
}
