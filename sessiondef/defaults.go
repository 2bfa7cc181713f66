package sessiondef

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

// DefaultArgs are applied to every session unless a defaults file says otherwise.
var DefaultArgs = []string{"--headless", "--no-sandbox"}

// StandardDefaults returns the defaults used when no defaults file is given.
func StandardDefaults() SessionConfig {
	return Build(WithArgs(DefaultArgs...))
}

// LoadDefaults reads a YAML document of session options, for instance:
//
//	args: ["--headless", "--no-sandbox", "--disable-gpu"]
//	binary: /opt/chrome/chrome
//	prefs:
//	  intl.accept_languages: en-US
func LoadDefaults(fs afero.Fs, path string) (SessionConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("can't read session defaults: %w", err)
	}
	return ParseDefaults(data)
}

// ParseDefaults decodes a YAML document of session options.
func ParseDefaults(data []byte) (SessionConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid session defaults: %w", err)
	}
	c := make(SessionConfig, len(raw))
	for k, v := range raw {
		c[k] = ldvalue.CopyArbitraryValue(normalizeYAML(v))
	}
	if v, ok := c[OptionArgs]; ok && v.Type() != ldvalue.ArrayType {
		return nil, fmt.Errorf("invalid session defaults: %q must be a list", OptionArgs)
	}
	return c, nil
}

// yaml.v3 produces map[string]interface{} for string-keyed mappings but map[interface{}]interface{}
// is still possible for other key types, which ldvalue cannot copy.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return m
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	default:
		return v
	}
}
