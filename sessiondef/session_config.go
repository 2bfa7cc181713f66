// Package sessiondef defines the configuration that a test passes when it acquires an
// automation session. It is shared by every driver backend.
package sessiondef

import (
	"sort"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Well-known option names. Backends ignore options they do not understand.
const (
	OptionArgs              = "args"
	OptionExcludeSwitches   = "excludeSwitches"
	OptionPrefs             = "prefs"
	OptionBrowserVersion    = "browserVersion"
	OptionBinary            = "binary"
	OptionW3C               = "w3c"
	OptionLoggingPrefs      = "loggingPrefs"
	OptionCapabilities      = "capabilities"
	OptionDriverLogPath     = "driverLogPath"
	OptionVerbose           = "verbose"
	OptionRemoteURL         = "remoteURL"
	OptionDownloadDir       = "downloadDir"
	OptionUserDataDir       = "userDataDir"
	OptionPageLoadTimeoutMS = "pageLoadTimeoutMs"
	OptionImplicitWaitMS    = "implicitWaitMs"
)

// Capability names as they appear in WebDriver new-session requests and responses.
const (
	CapabilityChromeOptions  = "goog:chromeOptions"
	CapabilityLoggingPrefs   = "goog:loggingPrefs"
	CapabilityBrowserName    = "browserName"
	CapabilityBrowserVersion = "browserVersion"
)

// PrefDownloadDirectory is the Chrome preference that selects where downloads are saved.
const PrefDownloadDirectory = "download.default_directory"

// SessionConfig maps option names to values. Option order is irrelevant.
type SessionConfig map[string]ldvalue.Value

// Copy returns a shallow copy; ldvalue.Value is immutable so this is enough.
func (c SessionConfig) Copy() SessionConfig {
	ret := make(SessionConfig, len(c))
	for k, v := range c {
		ret[k] = v
	}
	return ret
}

// Get returns the value of an option, or a null value if it is not set.
func (c SessionConfig) Get(name string) ldvalue.Value {
	return c[name]
}

func (c SessionConfig) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// String returns the option name as a string, or "" if it is unset or not a string.
func (c SessionConfig) String(name string) string {
	return c[name].StringValue()
}

// Bool returns the value of a boolean option and whether it was set.
func (c SessionConfig) Bool(name string) (value bool, defined bool) {
	v, ok := c[name]
	if !ok || v.Type() != ldvalue.BoolType {
		return false, false
	}
	return v.BoolValue(), true
}

// OptionalInt returns a numeric option, undefined if it is unset or not a number.
func (c SessionConfig) OptionalInt(name string) ldvalue.OptionalInt {
	v, ok := c[name]
	if !ok || v.Type() != ldvalue.NumberType {
		return ldvalue.OptionalInt{}
	}
	return ldvalue.NewOptionalInt(v.IntValue())
}

// Strings returns an array option as a string slice, skipping non-string elements.
func (c SessionConfig) Strings(name string) []string {
	v := c[name]
	if v.Type() != ldvalue.ArrayType {
		return nil
	}
	ret := make([]string, 0, v.Count())
	for i := 0; i < v.Count(); i++ {
		if e := v.GetByIndex(i); e.Type() == ldvalue.StringType {
			ret = append(ret, e.StringValue())
		}
	}
	return ret
}

// Object returns an object option as a map of arbitrary Go values, suitable for JSON encoding.
func (c SessionConfig) Object(name string) map[string]interface{} {
	v := c[name]
	if v.Type() != ldvalue.ObjectType {
		return nil
	}
	m, _ := v.AsArbitraryValue().(map[string]interface{})
	return m
}

func (c SessionConfig) Args() []string            { return c.Strings(OptionArgs) }
func (c SessionConfig) ExcludeSwitches() []string { return c.Strings(OptionExcludeSwitches) }

// Prefs returns the browser preferences, including the download directory if
// OptionDownloadDir is set.
func (c SessionConfig) Prefs() map[string]interface{} {
	prefs := c.Object(OptionPrefs)
	if dir := c.String(OptionDownloadDir); dir != "" {
		if prefs == nil {
			prefs = make(map[string]interface{})
		}
		if _, ok := prefs[PrefDownloadDirectory]; !ok {
			prefs[PrefDownloadDirectory] = dir
		}
	}
	return prefs
}

// Keys returns the option names in sorted order.
func (c SessionConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONString returns a stable JSON representation for debug logging.
func (c SessionConfig) JSONString() string {
	b := ldvalue.ObjectBuild()
	for _, k := range c.Keys() {
		b.Set(k, c[k])
	}
	return b.Build().JSONString()
}

// Merge returns a copy of c where every option that c does not set is taken from defaults.
// Args are the exception: the result contains the default args followed by c's own args,
// without exact duplicates.
func (c SessionConfig) Merge(defaults SessionConfig) SessionConfig {
	ret := c.Copy()
	for k, v := range defaults {
		if _, ok := ret[k]; !ok {
			ret[k] = v
		}
	}
	if defaults.Has(OptionArgs) && c.Has(OptionArgs) {
		ret[OptionArgs] = stringArray(unionStrings(defaults.Args(), c.Args()))
	}
	return ret
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var ret []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			ret = append(ret, s)
		}
	}
	return ret
}

func stringArray(ss []string) ldvalue.Value {
	b := ldvalue.ArrayBuild()
	for _, s := range ss {
		b.Add(ldvalue.String(s))
	}
	return b.Build()
}
