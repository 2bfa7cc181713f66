package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFilters(t *testing.T, run, skip []string) RegexFilters {
	var f RegexFilters
	for _, r := range run {
		require.NoError(t, f.MustMatch.Set(r))
	}
	for _, s := range skip {
		require.NoError(t, f.MustNotMatch.Set(s))
	}
	return f
}

func testID(path ...string) TestID { return TestID{Path: path} }

func TestEmptyFiltersAllowEverything(t *testing.T) {
	f := makeFilters(t, nil, nil)
	assert.True(t, f.AsFilter(testID("capabilities", "W3C session is the default")))
}

func TestMustMatch(t *testing.T) {
	f := makeFilters(t, []string{"windows"}, nil)
	assert.True(t, f.AsFilter(testID("windows")))
	assert.True(t, f.AsFilter(testID("windows", "handles returned while second window loads slowly")))
	assert.False(t, f.AsFilter(testID("printing")))
}

func TestMustMatchWithPathSelectsEnclosingGroup(t *testing.T) {
	f := makeFilters(t, []string{"capabilities/legacy"}, nil)
	assert.True(t, f.AsFilter(testID("capabilities")))
	assert.True(t, f.AsFilter(testID("capabilities", "legacy protocol is rejected")))
	assert.False(t, f.AsFilter(testID("capabilities", "W3C session is the default")))
	assert.False(t, f.AsFilter(testID("windows")))
}

func TestMustMatchWithSlashInsideGroup(t *testing.T) {
	f := makeFilters(t, []string{"(capabilities/legacy|input/special)"}, nil)
	assert.True(t, f.AsFilter(testID("capabilities")))
	assert.True(t, f.AsFilter(testID("capabilities", "legacy protocol is rejected")))
	assert.False(t, f.AsFilter(testID("capabilities", "W3C session is the default")))
	assert.True(t, f.AsFilter(testID("input", "special characters are typed")))
	assert.False(t, f.AsFilter(testID("windows", "minimized window is hidden")))
}

func TestMustMatchWithAlternativesPerSegment(t *testing.T) {
	f := makeFilters(t, []string{"(setup|capabilities)/.*(legacy|google)"}, nil)
	assert.True(t, f.AsFilter(testID("setup")))
	assert.True(t, f.AsFilter(testID("capabilities")))
	assert.False(t, f.AsFilter(testID("windows")))
	assert.True(t, f.AsFilter(testID("setup", "navigate to google.com")))
	assert.False(t, f.AsFilter(testID("setup", "navigate to a local page")))
}

func TestSplitPathPattern(t *testing.T) {
	for pattern, want := range map[string][]string{
		"capabilities":          {"capabilities"},
		"capabilities/legacy":   {"capabilities", "legacy"},
		`a\/b/c`:                {`a\/b`, "c"},
		"(a|b)/[^x]+":           {"(a|b)", "[^x]+"},
		"[]/]x/y":               nil,
		"(capabilities/legacy)": nil,
		"windows/[a-z/]*slowly": nil,
		"setup/google|windows":  nil,
		"setup|windows":         {"setup|windows"},
	} {
		parts, ok := splitPathPattern(pattern)
		assert.Equal(t, want != nil, ok, pattern)
		if ok {
			assert.Equal(t, want, parts, pattern)
		}
	}
}

func TestMustNotMatch(t *testing.T) {
	f := makeFilters(t, nil, []string{"android", "google"})
	assert.False(t, f.AsFilter(testID("android", "new tab")))
	assert.False(t, f.AsFilter(testID("setup", "navigate to google.com")))
	assert.True(t, f.AsFilter(testID("setup", "navigate after deleting network conditions")))
}

func TestInvalidRegex(t *testing.T) {
	var r RegexList
	assert.Error(t, r.Set("("))
	assert.False(t, r.IsDefined())
}

func TestRegexListString(t *testing.T) {
	f := makeFilters(t, []string{"a", "b.*"}, nil)
	assert.Equal(t, `"a" or "b.*"`, f.MustMatch.String())
	assert.Equal(t, "regex", f.MustMatch.Type())
}

func TestPrintFilterDescription(t *testing.T) {
	var buf bytes.Buffer
	f := makeFilters(t, []string{"windows"}, []string{"slow"})
	PrintFilterDescription(&buf, f, []string{"webdriver"}, []string{"cdp", "playwright"})
	out := buf.String()
	assert.Contains(t, out, `skip any not matching "windows"`)
	assert.Contains(t, out, `skip any matching "slow"`)
	assert.Contains(t, out, "Automation backends for this run: webdriver")
	assert.Contains(t, out, "  cdp, playwright")
}
