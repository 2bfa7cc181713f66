package regressions

import (
	"sort"

	"github.com/browser-repro/regression-tests/framework"
)

// RunTestSuite runs every regression case once per configured backend. Test IDs start with the
// backend name, so "--run cdp/" selects a single backend.
func RunTestSuite(
	env *Environment,
	filter framework.Filter,
	testLogger framework.TestLogger,
	config framework.Config,
) framework.Results {
	backends := make([]string, 0, len(env.Drivers))
	for name := range env.Drivers {
		backends = append(backends, name)
	}
	sort.Strings(backends)

	return framework.Run(filter, testLogger, config, func(c *framework.Context) {
		root := newTestScope(c, env, nil)
		for _, name := range backends {
			d := env.Drivers[name]
			root.Run(name, func(t *T) {
				t.driver = d
				DoAllTests(t)
			})
		}
	})
}

// DoAllTests runs every group of cases against the backend of t.
func DoAllTests(t *T) {
	t.Run("setup", DoSetupTests)
	t.Run("capabilities", DoCapabilityTests)
	t.Run("input", DoInputTests)
	t.Run("windows", DoWindowTests)
	t.Run("automation", DoAutomationTests)
	t.Run("logging", DoLoggingTests)
	t.Run("memory", DoMemoryTests)
	t.Run("printing", DoPrintingTests)
	t.Run("downloads", DoDownloadTests)
	t.Run("concurrency", DoConcurrencyTests)
	t.Run("android", DoAndroidTests)
}
