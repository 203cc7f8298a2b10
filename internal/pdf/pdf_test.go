package pdf_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialflow/internal/pdf"
	"materialflow/internal/pdf/pdftest"
)

func TestInspect_PageCount(t *testing.T) {
	info, err := pdf.Inspect(pdftest.Document(3))
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Equal(t, "1.4", info.Version)
}

func TestInspect_NotPDF(t *testing.T) {
	_, err := pdf.Inspect([]byte("PK\x03\x04 zip archive"))
	assert.True(t, errors.Is(err, pdf.ErrNotPDF))
}

func TestInspect_Truncated(t *testing.T) {
	doc := pdftest.Document(1)
	_, err := pdf.Inspect(doc[:40])
	assert.Error(t, err)
}
