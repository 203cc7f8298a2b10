package intake_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/intake"
	"materialflow/internal/pdf/pdftest"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newRegistrar(mode domain.ProductMode) *intake.Registrar {
	return intake.NewRegistrar(mode, zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func message(atts ...domain.Attachment) *domain.InboundMessage {
	return &domain.InboundMessage{
		Source:      "email",
		MessageID:   "<m1@example.com>",
		Sender:      "Jan Bakker <jan.bakker@supplier.nl>",
		Subject:     "Datasheet tegels NL",
		Attachments: atts,
	}
}

func pdfAttachment(name string) domain.Attachment {
	return domain.Attachment{FileName: name, ContentType: "application/pdf", Data: pdftest.Document(2)}
}

func TestRegister_SingleDocument(t *testing.T) {
	docs, err := newRegistrar(domain.ProductModeMulti).Register(message(pdfAttachment("tile-spec.pdf")))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Regexp(t, regexp.MustCompile(`^doc-\d+-jan-bakker-[0-9a-f]{8}$`), doc.ID)
	assert.Empty(t, doc.GroupID)
	assert.Equal(t, domain.StateInterpreted, doc.State)
	assert.Equal(t, "nl", doc.Language)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, domain.DocumentTypeSpecification, doc.DocumentType)
	assert.Equal(t, 0, doc.RetryCount)
	assert.Equal(t, fixedNow, doc.ReceivedAt)
	assert.Equal(t, "tile-spec.pdf", doc.OriginalRequest.FileName)

	require.Len(t, doc.Lifecycle, 1)
	entry := doc.Lifecycle[0]
	assert.Equal(t, domain.StateReceived, entry.FromState)
	assert.Equal(t, domain.StateInterpreted, entry.ToState)
	assert.Equal(t, "Document language = 'nl'", entry.Notes)
	assert.Equal(t, doc.ID, entry.DocumentID)
}

func TestRegister_MultipleAttachments(t *testing.T) {
	msg := message(
		pdfAttachment("catalogue-2026.pdf"),
		domain.Attachment{FileName: "logo.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		pdfAttachment("sheet.pdf"),
	)

	docs, err := newRegistrar(domain.ProductModeMulti).Register(msg)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.NotEmpty(t, docs[0].GroupID)
	assert.Equal(t, docs[0].GroupID, docs[1].GroupID)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
	assert.Equal(t, domain.DocumentTypeCatalogue, docs[0].DocumentType)
	assert.Equal(t, domain.DocumentTypeDatasheet, docs[1].DocumentType)

	single, err := newRegistrar(domain.ProductModeSingle).Register(msg)
	require.NoError(t, err)
	assert.Len(t, single, 1)
}

func TestRegister_MissingAttachment(t *testing.T) {
	tests := []struct {
		name string
		msg  *domain.InboundMessage
	}{
		{"no attachments", message()},
		{"only images", message(domain.Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte("x")})},
		{"unreadable pdf", message(domain.Attachment{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("not a pdf")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRegistrar(domain.ProductModeMulti).Register(tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMissingAttachment))
			assert.Equal(t, domain.KindMissingAttachment, domain.KindOf(err))
		})
	}
}

func TestRegister_OctetStreamPDF(t *testing.T) {
	att := pdfAttachment("Sheet.PDF")
	att.ContentType = "application/octet-stream"

	docs, err := newRegistrar(domain.ProductModeMulti).Register(message(att))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestReenter(t *testing.T) {
	r := newRegistrar(domain.ProductModeMulti)
	docs, err := r.Register(message(pdfAttachment("sheet.pdf")))
	require.NoError(t, err)
	doc := docs[0]
	doc.State = domain.StateValidationFailed
	original := doc.OriginalRequest

	next, err := r.Reenter(doc, "Missing MVS fields")
	require.NoError(t, err)

	assert.Equal(t, 1, next.RetryCount)
	assert.Equal(t, domain.StateRetryExtraction, next.State)
	assert.Equal(t, original, next.OriginalRequest)
	last := next.Lifecycle[len(next.Lifecycle)-1]
	assert.Equal(t, domain.StateValidationFailed, last.FromState)
	assert.Equal(t, domain.StateRetryExtraction, last.ToState)
	assert.Len(t, doc.Lifecycle, 1, "input log is not modified")

	doc.State = domain.StateCompleted
	_, err = r.Reenter(doc, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		subject, body, want string
	}{
		{"Datasheet (Deutsch)", "", "de"},
		{"Fiche technique français", "", "fr"},
		{"New tiles", "", "en"},
		{"Nieuwe tegels", "<html><body><p>Hierbij de specificaties van het product en een prijslijst.</p></body></html>", "nl"},
		{"Produkt", "Anbei der Katalog und die Preisliste mit den Details.", "de"},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, intake.DetectLanguage(tt.subject, tt.body))
		})
	}
}

func TestBodyText(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body><p>Hello</p><script>x()</script><div>world</div></body></html>`
	assert.Equal(t, "Hello world", intake.BodyText(html))
	assert.Equal(t, "plain text", intake.BodyText("plain text"))
	assert.Equal(t, "Dear team, see attached", intake.BodyText(`<div>Dear team,<br><script>x()</script>  see   attached</div>`))
}
