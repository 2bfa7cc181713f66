package regressions

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processIDPattern = regexp.MustCompile(`Process ID: \d+`)

var consoleMessages = []string{
	"console message 1",
	"console message 2",
	"console message 3",
	"console message 4",
}

func DoLoggingTests(t *T) {
	// Verbose chromedriver logs should identify the process that wrote them.
	t.Run("driver log reports process ID", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		logPath := filepath.Join(t.ArtifactDir("driver-log"), "chromedriver.log")
		session := t.NewSession(sessiondef.WithDriverLog(logPath, true))
		require.Equal(t, logPath, session.DriverLogPath())

		data, err := afero.ReadFile(t.ArtifactFs(), logPath)
		require.NoError(t, err)
		t.Debug("chromedriver log has %d bytes", len(data))
		assert.Regexp(t, processIDPattern, string(data))
	})

	t.Run("console messages are retrieved in order", func(t *T) {
		session := t.NewSession(sessiondef.WithBrowserLogging("ALL"))
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageConsole))

		records, err := session.Logs(t.Ctx(), driver.LogBrowser)
		t.SkipIfUnsupported(err)
		require.NoError(t, err)

		var seen []string
		for _, r := range records {
			t.Debug("browser log: [%s] %s", r.Level, r.Message)
			for _, m := range consoleMessages {
				if strings.Contains(r.Message, m) {
					seen = append(seen, m)
				}
			}
		}
		assert.Equal(t, consoleMessages, seen)
	})
}
