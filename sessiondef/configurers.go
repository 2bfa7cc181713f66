package sessiondef

import (
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Configurer modifies a SessionConfig. Tests combine configurers to describe the session
// they need.
type Configurer interface {
	ApplyConfiguration(SessionConfig)
}

type configurerFunc func(SessionConfig)

func (f configurerFunc) ApplyConfiguration(c SessionConfig) { f(c) }

// Build applies configurers in order to an empty config.
func Build(configurers ...Configurer) SessionConfig {
	c := make(SessionConfig)
	for _, cf := range configurers {
		if cf != nil {
			cf.ApplyConfiguration(c)
		}
	}
	return c
}

// WithOption sets an arbitrary option.
func WithOption(name string, value ldvalue.Value) Configurer {
	return configurerFunc(func(c SessionConfig) { c[name] = value })
}

// WithArgs appends browser command-line arguments.
func WithArgs(args ...string) Configurer {
	return configurerFunc(func(c SessionConfig) {
		c[OptionArgs] = stringArray(append(c.Args(), args...))
	})
}

// WithExcludedSwitches asks the driver not to add its default switches of these names.
func WithExcludedSwitches(names ...string) Configurer {
	return configurerFunc(func(c SessionConfig) {
		c[OptionExcludeSwitches] = stringArray(append(c.ExcludeSwitches(), names...))
	})
}

// WithPref sets a single browser preference.
func WithPref(name string, value ldvalue.Value) Configurer {
	return configurerFunc(func(c SessionConfig) {
		b := ldvalue.ObjectBuild()
		existing := c[OptionPrefs]
		for _, k := range existing.Keys() {
			b.Set(k, existing.GetByKey(k))
		}
		b.Set(name, value)
		c[OptionPrefs] = b.Build()
	})
}

// WithCapability adds a top-level capability to the new-session request.
func WithCapability(name string, value ldvalue.Value) Configurer {
	return configurerFunc(func(c SessionConfig) {
		b := ldvalue.ObjectBuild()
		existing := c[OptionCapabilities]
		for _, k := range existing.Keys() {
			b.Set(k, existing.GetByKey(k))
		}
		b.Set(name, value)
		c[OptionCapabilities] = b.Build()
	})
}

// WithW3C explicitly selects or deselects the W3C protocol dialect.
func WithW3C(enabled bool) Configurer {
	return WithOption(OptionW3C, ldvalue.Bool(enabled))
}

// WithBrowserLogging requests browser console logs at the given level, such as "ALL".
func WithBrowserLogging(level string) Configurer {
	return WithOption(OptionLoggingPrefs, ldvalue.ObjectBuild().Set("browser", ldvalue.String(level)).Build())
}

// WithDownloadDir makes the browser save downloads to dir without prompting.
func WithDownloadDir(dir string) Configurer {
	return WithOption(OptionDownloadDir, ldvalue.String(dir))
}

// WithDriverLog makes the driver service write its log to path.
func WithDriverLog(path string, verbose bool) Configurer {
	return configurerFunc(func(c SessionConfig) {
		c[OptionDriverLogPath] = ldvalue.String(path)
		c[OptionVerbose] = ldvalue.Bool(verbose)
	})
}

// WithRemoteURL makes the session connect to an already running remote end, such as an
// Appium server, instead of launching a local driver.
func WithRemoteURL(url string) Configurer {
	return WithOption(OptionRemoteURL, ldvalue.String(url))
}

// WithPageLoadTimeout sets the page load timeout in milliseconds.
func WithPageLoadTimeout(ms int) Configurer {
	return WithOption(OptionPageLoadTimeoutMS, ldvalue.Int(ms))
}
