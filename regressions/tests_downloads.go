package regressions

import (
	"path/filepath"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	downloadFileName = "regression.txt"
	downloadDeadline = 20 * time.Second
)

func DoDownloadTests(t *T) {
	t.Run("file lands in the configured directory", func(t *T) {
		dir := t.ArtifactDir("download")
		session := t.NewSession(sessiondef.WithDownloadDir(dir))
		if d, ok := session.(driver.Downloader); ok {
			require.NoError(t, d.SetDownloadDir(t.Ctx(), dir))
		}

		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageDownload))
		require.NoError(t, t.RequireElement(session, driver.ID("download-link")).Click(t.Ctx()))

		path := filepath.Join(dir, downloadFileName)
		require.True(t, t.AwaitArtifact(path, downloadDeadline),
			"%s did not appear within %s", path, downloadDeadline)

		data, err := afero.ReadFile(t.ArtifactFs(), path)
		require.NoError(t, err)
		assert.Equal(t, fixtures.DownloadContent, string(data))
	})
}
