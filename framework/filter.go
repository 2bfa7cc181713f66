package framework

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter is a function that can determine whether to run a specific test or not.
type Filter func(TestID) bool

type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

func (r RegexFilters) AsFilter(id TestID) bool {
	name := id.String()
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(name) || r.MustMatch.AnyPrefixOf(id)) &&
		!r.MustNotMatch.AnyMatch(name)
}

type RegexList struct {
	patterns []*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.patterns {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (r *RegexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	r.patterns = append(r.patterns, rx)
	return nil
}

// Type is called by the command line parser
func (r *RegexList) Type() string {
	return "regex"
}

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r RegexList) AnyMatch(s string) bool {
	for _, p := range r.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// AnyPrefixOf returns true if the ID is a group that contains a test which could still match.
// Without this, "--run capabilities/legacy" would exclude the "capabilities" group itself and
// never get as far as the test it names.
//
// A pattern is split into path segments only at slashes outside groups and character classes.
// A pattern with a slash inside one, like "(capabilities/legacy|input)", or with slashes and a
// top-level "|", could span any number of segments. For such a pattern every group is entered,
// and the tests in it are matched against the whole pattern.
func (r RegexList) AnyPrefixOf(id TestID) bool {
	for _, p := range r.patterns {
		parts, ok := splitPathPattern(p.String())
		if !ok {
			return true
		}
		if len(parts) <= len(id.Path) {
			continue
		}
		matched := true
		for i, name := range id.Path {
			rx, err := regexp.Compile(parts[i])
			if err != nil || !rx.MatchString(name) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// splitPathPattern splits a regex at its top-level slashes. ok is false if the pattern also
// has a slash inside a group or character class, or if it mixes slashes with a top-level "|".
func splitPathPattern(pattern string) (parts []string, ok bool) {
	depth, inClass, start, alternates := 0, false, 0, false
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			} else if c == '/' {
				return nil, false
			}
		case c == '[':
			inClass = true
			if strings.HasPrefix(pattern[i+1:], "]") || strings.HasPrefix(pattern[i+1:], "^]") {
				i += strings.IndexByte(pattern[i+1:], ']') + 1
			}
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '|' && depth == 0:
			alternates = true
		case c == '/' && depth > 0:
			return nil, false
		case c == '/':
			parts = append(parts, pattern[start:i])
			start = i + 1
		}
	}
	if alternates && len(parts) > 0 {
		return nil, false
	}
	return append(parts, pattern[start:]), true
}

func PrintFilterDescription(out io.Writer, filters RegexFilters, availableBackends, missingBackends []string) {
	if filters.MustMatch.IsDefined() || filters.MustNotMatch.IsDefined() {
		fmt.Fprintln(out, "Some tests will be skipped based on the filter criteria for this test run:")
		if filters.MustMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any not matching %s\n", filters.MustMatch)
		}
		if filters.MustNotMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any matching %s\n", filters.MustNotMatch)
		}
		fmt.Fprintln(out)
	}

	if len(availableBackends) > 0 {
		fmt.Fprintf(out, "Automation backends for this run: %s\n", strings.Join(availableBackends, ", "))
	}
	if len(missingBackends) > 0 {
		fmt.Fprintln(out, "Some tests may be skipped because these automation backends are not enabled:")
		fmt.Fprintf(out, "  %s\n", strings.Join(missingBackends, ", "))
	}
	fmt.Fprintln(out)
}
