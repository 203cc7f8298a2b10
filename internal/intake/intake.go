// Package intake registers inbound messages as documents and re-enters
// documents for another extraction attempt.
package intake

import (
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/lifecycle"
	"materialflow/internal/pdf"
)

const agent = "intake"

// Registrar turns inbound messages into documents.
type Registrar struct {
	mode   domain.ProductMode
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistrar creates a Registrar. In single mode only the first PDF of a
// message becomes a document.
func NewRegistrar(mode domain.ProductMode, logger *zap.Logger) *Registrar {
	return &Registrar{mode: mode, now: time.Now, logger: logger}
}

// WithClock replaces the registrar's time source.
func (r *Registrar) WithClock(now func() time.Time) *Registrar {
	r.now = now
	return r
}

// Register produces one INTERPRETED document per readable PDF attachment.
// A message without any readable PDF fails with MissingAttachment.
func (r *Registrar) Register(msg *domain.InboundMessage) ([]domain.Document, error) {
	now := r.now()
	pdfs := r.pdfAttachments(msg)
	if len(pdfs) == 0 {
		return nil, domain.NewPipelineError(domain.KindMissingAttachment, agent,
			fmt.Errorf("no readable PDF among %d attachment(s) from %q", len(msg.Attachments), msg.Sender))
	}
	if r.mode == domain.ProductModeSingle {
		pdfs = pdfs[:1]
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	var groupID string
	if len(pdfs) > 1 {
		groupID = newGroupID(now)
	}
	language := DetectLanguage(msg.Subject, msg.Body)

	docs := make([]domain.Document, 0, len(pdfs))
	for _, p := range pdfs {
		doc := domain.Document{
			ID:           newDocumentID(now, msg.Sender),
			GroupID:      groupID,
			RequestID:    newRequestID(now),
			Sender:       msg.Sender,
			Subject:      msg.Subject,
			ReceivedAt:   receivedAt.UTC(),
			FileName:     p.att.FileName,
			ContentType:  domain.ContentTypePDF,
			Content:      p.att.Data,
			PageCount:    p.info.PageCount,
			DocumentType: GuessDocumentType(p.att.FileName),
			Language:     language,
			State:        domain.StateReceived,
			OriginalRequest: domain.OriginalRequest{
				Source:     msg.Source,
				MessageID:  msg.MessageID,
				Sender:     msg.Sender,
				Subject:    msg.Subject,
				ReceivedAt: receivedAt.UTC(),
				FileName:   p.att.FileName,
			},
		}
		doc, err := lifecycle.Advance(doc, domain.StateInterpreted, agent,
			fmt.Sprintf("Document language = '%s'", language), now)
		if err != nil {
			return nil, err
		}
		r.logger.Info("intake.Register: document registered",
			zap.String("document_id", doc.ID),
			zap.String("group_id", doc.GroupID),
			zap.String("file_name", doc.FileName),
			zap.Int("pages", doc.PageCount),
			zap.String("language", language),
		)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Reenter sends a document back to extraction, consuming one unit of the
// retry budget. The original request is carried forward as is.
func (r *Registrar) Reenter(doc domain.Document, notes string) (domain.Document, error) {
	next, err := lifecycle.Advance(doc, domain.StateRetryExtraction, agent, notes, r.now())
	if err != nil {
		return doc, err
	}
	next.RetryCount++
	r.logger.Info("intake.Reenter: retrying extraction",
		zap.String("document_id", next.ID),
		zap.Int("attempt", next.RetryCount),
		zap.String("from", string(doc.State)),
	)
	return next, nil
}

type pdfAttachment struct {
	att  domain.Attachment
	info *pdf.Info
}

func (r *Registrar) pdfAttachments(msg *domain.InboundMessage) []pdfAttachment {
	var out []pdfAttachment
	for _, att := range msg.Attachments {
		if !isPDF(att) {
			continue
		}
		info, err := pdf.Inspect(att.Data)
		if err != nil {
			r.logger.Warn("intake.Register: skipping unreadable pdf",
				zap.String("file_name", att.FileName),
				zap.String("sender", msg.Sender),
				zap.Error(err),
			)
			continue
		}
		if att.FileName == "" {
			att.FileName = "document.pdf"
		}
		out = append(out, pdfAttachment{att: att, info: info})
	}
	return out
}

func isPDF(att domain.Attachment) bool {
	ct := strings.ToLower(strings.TrimSpace(att.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == domain.ContentTypePDF {
		return true
	}
	return ct == "application/octet-stream" && strings.EqualFold(path.Ext(att.FileName), ".pdf")
}
