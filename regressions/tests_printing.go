package regressions

import (
	"bytes"
	"path/filepath"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pointsPerCM         = 72 / 2.54
	pageSizeTolerancePt = 1.0
	printedArtifactWait = 10 * time.Second
	printedPDFName      = "printed.pdf"
)

func DoPrintingTests(t *T) {
	t.Run("PDF has requested page size", func(t *T) {
		dir := t.ArtifactDir("print")
		session := t.NewSession()
		printer, ok := session.(driver.Printer)
		if !ok {
			t.SkipWithReason("the " + t.Backend() + " backend cannot print")
		}
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PagePrint))
		t.RequireElement(session, driver.CSS("h1"))

		data, err := printer.PrintPDF(t.Ctx(), driver.A4)
		t.SkipIfUnsupported(err)
		require.NoError(t, err)

		path := filepath.Join(dir, printedPDFName)
		require.NoError(t, afero.WriteFile(t.ArtifactFs(), path, data, 0o644))
		require.True(t, t.AwaitArtifact(path, printedArtifactWait), "%s was not written", path)

		saved, err := afero.ReadFile(t.ArtifactFs(), path)
		require.NoError(t, err)
		dims, err := pageDimensions(saved)
		require.NoError(t, err, "the printed file is not a readable PDF")
		require.NotEmpty(t, dims)

		for i, d := range dims {
			t.Debug("page %d: %.2f x %.2f pt", i+1, d.Width, d.Height)
			assert.InDelta(t, driver.A4.PageWidthCM*pointsPerCM, d.Width, pageSizeTolerancePt, "width of page %d", i+1)
			assert.InDelta(t, driver.A4.PageHeightCM*pointsPerCM, d.Height, pageSizeTolerancePt, "height of page %d", i+1)
		}
	})
}

// pageDimensions returns the media box size of every page, in points.
func pageDimensions(pdf []byte) ([]types.Dim, error) {
	return api.PageDims(bytes.NewReader(pdf), model.NewDefaultConfiguration())
}
