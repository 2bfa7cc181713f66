package sessiondef

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func TestBuildWithConfigurers(t *testing.T) {
	c := Build(
		WithArgs("--headless"),
		WithArgs("--remote-debugging-port=9222"),
		WithExcludedSwitches("enable-automation"),
		WithW3C(false),
		WithPageLoadTimeout(5000),
		WithCapability("goog:loggingPrefs", ldvalue.ObjectBuild().Set("driver", ldvalue.String("ALL")).Build()),
	)

	assert.Equal(t, []string{"--headless", "--remote-debugging-port=9222"}, c.Args())
	assert.Equal(t, []string{"enable-automation"}, c.ExcludeSwitches())
	w3c, defined := c.Bool(OptionW3C)
	assert.True(t, defined)
	assert.False(t, w3c)
	assert.Equal(t, ldvalue.NewOptionalInt(5000), c.OptionalInt(OptionPageLoadTimeoutMS))
	assert.False(t, c.OptionalInt(OptionImplicitWaitMS).IsDefined())
	assert.Equal(t, map[string]interface{}{"goog:loggingPrefs": map[string]interface{}{"driver": "ALL"}},
		c.Object(OptionCapabilities))
}

func TestBoolOptionUnsetOrWrongType(t *testing.T) {
	c := Build(WithOption(OptionW3C, ldvalue.String("yes")))
	_, defined := c.Bool(OptionW3C)
	assert.False(t, defined)
	_, defined = SessionConfig{}.Bool(OptionW3C)
	assert.False(t, defined)
}

func TestPrefsIncludeDownloadDir(t *testing.T) {
	c := Build(WithPref("intl.accept_languages", ldvalue.String("en-US")), WithDownloadDir("/tmp/dl"))
	assert.Equal(t, map[string]interface{}{
		"intl.accept_languages":  "en-US",
		PrefDownloadDirectory: "/tmp/dl",
	}, c.Prefs())

	explicit := Build(WithPref(PrefDownloadDirectory, ldvalue.String("/a")), WithDownloadDir("/b"))
	assert.Equal(t, "/a", explicit.Prefs()[PrefDownloadDirectory])
}

func TestMergeTakesMissingOptionsFromDefaultsAndUnionsArgs(t *testing.T) {
	defaults := Build(WithArgs("--headless", "--no-sandbox"), WithOption(OptionBinary, ldvalue.String("/opt/chrome")))
	c := Build(WithArgs("--no-sandbox", "--disable-gpu"), WithOption(OptionBinary, ldvalue.String("/usr/bin/chrome")))

	merged := c.Merge(defaults)
	assert.Equal(t, []string{"--headless", "--no-sandbox", "--disable-gpu"}, merged.Args())
	assert.Equal(t, "/usr/bin/chrome", merged.String(OptionBinary))

	// the receiver is unchanged
	assert.Equal(t, []string{"--no-sandbox", "--disable-gpu"}, c.Args())

	onlyDefaults := SessionConfig{}.Merge(defaults)
	assert.Equal(t, []string{"--headless", "--no-sandbox"}, onlyDefaults.Args())
	assert.Equal(t, "/opt/chrome", onlyDefaults.String(OptionBinary))
}

func TestJSONStringIsSorted(t *testing.T) {
	c := Build(WithW3C(true), WithArgs("--headless"))
	assert.Equal(t, `{"args":["--headless"],"w3c":true}`, c.JSONString())
}

func TestLoadDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/defaults.yaml", []byte(`
args: ["--headless", "--disable-gpu"]
binary: /opt/chrome/chrome
prefs:
  intl.accept_languages: en-US
  profile:
    default_content_settings: 1
`), 0o644))

	c, err := LoadDefaults(fs, "/etc/defaults.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"--headless", "--disable-gpu"}, c.Args())
	assert.Equal(t, "/opt/chrome/chrome", c.String(OptionBinary))
	assert.Equal(t, "en-US", c.Prefs()["intl.accept_languages"])
	assert.Equal(t, 1, c.Get(OptionPrefs).GetByKey("profile").GetByKey("default_content_settings").IntValue())
}

func TestLoadDefaultsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadDefaults(fs, "/missing.yaml")
	assert.Error(t, err)

	_, err = ParseDefaults([]byte("args: --headless"))
	assert.EqualError(t, err, `invalid session defaults: "args" must be a list`)

	_, err = ParseDefaults([]byte("args: [unterminated"))
	assert.Error(t, err)
}

func TestStandardDefaults(t *testing.T) {
	assert.Equal(t, DefaultArgs, StandardDefaults().Args())
}
