package ses

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

type sesNotifier struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	logger      *zap.Logger
}

// NewSESNotifier creates a new SES-backed Notifier that sends results as raw
// MIME messages so metadata files travel as attachments.
func NewSESNotifier(ctx context.Context, region, fromAddress, fromName string, logger *zap.Logger) (port.Notifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return &sesNotifier{
		client:      sesv2.NewFromConfig(cfg),
		fromAddress: fromAddress,
		fromName:    fromName,
		logger:      logger,
	}, nil
}

func (s *sesNotifier) Send(ctx context.Context, n *domain.Notification) error {
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	raw, err := buildRawMessage(from, n)
	if err != nil {
		return err
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{n.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	s.logger.Info("ses.Send: notification sent",
		zap.String("document_id", n.DocumentID),
		zap.String("to", n.To),
		zap.String("ses_message_id", messageID),
		zap.Int("attachments", len(n.Attachments)),
	)
	return nil
}

// buildRawMessage renders n as multipart/mixed with a text and HTML
// alternative followed by the base64 attachments.
func buildRawMessage(from string, n *domain.Notification) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", n.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", n.Body},
		{"text/html; charset=utf-8", buildHTML(n.Body)},
	} {
		w, err := altWriter.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	w, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range n.Attachments {
		w, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", a.Type, a.Name)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Name)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(wrap(a.Data, 76))); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("building MIME message: %w", err)
	}
	return buf.Bytes(), nil
}

func buildHTML(body string) string {
	var paras strings.Builder
	for _, p := range strings.Split(body, "\n\n") {
		lines := strings.Split(html.EscapeString(p), "\n")
		fmt.Fprintf(&paras, "  <p>%s</p>\n", strings.Join(lines, "<br>"))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
%s  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">Material Intake - Product Metadata Extraction</p>
</body>
</html>`, paras.String())
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
