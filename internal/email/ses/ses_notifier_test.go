package ses

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialflow/internal/domain"
)

func TestBuildRawMessage(t *testing.T) {
	payload := `{"name":"Tile"}`
	n := &domain.Notification{
		DocumentID: "doc-1",
		To:         "buyer@example.com",
		Subject:    "✅ Material Metadata Extracted - Datasheet",
		Body:       "Material: Tile\nBrand: Mosa\n\nDocument ID: doc-1",
		Attachments: []domain.NotificationAttachment{{
			Name: "extracted_metadata.json",
			Type: "application/json",
			Data: base64.StdEncoding.EncodeToString([]byte(payload)),
		}},
	}

	raw, err := buildRawMessage("Material Intake <materials@example.com>", n)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, n.Subject, subject)
	assert.Equal(t, "buyer@example.com", msg.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	alt, err := mr.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(alt.Header.Get("Content-Type"), "multipart/alternative"))
	altBody, err := io.ReadAll(alt)
	require.NoError(t, err)
	assert.Contains(t, string(altBody), "Material: Tile")
	assert.Contains(t, string(altBody), "<p>Material: Tile<br>Brand: Mosa</p>")

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "extracted_metadata.json", att.FileName())
	encoded, err := io.ReadAll(att)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBuildHTML_Escapes(t *testing.T) {
	out := buildHTML("Reason: <script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<script>")
}
