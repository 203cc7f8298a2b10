// Package pdf inspects inbound PDF attachments.
package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned for content without a PDF header.
var ErrNotPDF = errors.New("content is not a PDF")

// Info describes a readable PDF.
type Info struct {
	PageCount int
	Version   string
}

// Inspect opens content with pdfcpu and reports its page count.
func Inspect(content []byte) (*Info, error) {
	if !bytes.HasPrefix(content, pdfMagic) {
		return nil, ErrNotPDF
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	count, err := api.PageCount(bytes.NewReader(content), cfg)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("reading pdf: document has no pages")
	}
	return &Info{PageCount: count, Version: headerVersion(content)}, nil
}

func headerVersion(content []byte) string {
	line := content[len(pdfMagic):]
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return string(bytes.TrimSpace(line))
}
