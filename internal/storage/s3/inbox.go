package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/intake"
)

// Envelope is the JSON form of an inbound message dropped into the inbox.
// Attachments carry their bytes inline or reference another key of the bucket.
type Envelope struct {
	MessageID   string               `json:"message_id"`
	Sender      string               `json:"sender"`
	Subject     string               `json:"subject"`
	Body        string               `json:"body"`
	HTMLBody    string               `json:"html_body"`
	ReceivedAt  time.Time            `json:"received_at"`
	Attachments []EnvelopeAttachment `json:"attachments"`
}

// EnvelopeAttachment is one attachment of an Envelope.
type EnvelopeAttachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data,omitempty"`
	Key         string `json:"key,omitempty"`
}

// Inbox is an inbound source over an S3 prefix. Each object directly under
// the prefix is one message: a JSON envelope, or a bare file whose sender and
// subject come from the object's user metadata. Acknowledged objects move
// under the processed prefix.
type Inbox struct {
	store     *Client
	prefix    string
	processed string
	logger    *zap.Logger

	mu      sync.Mutex
	claimed map[string]bool
}

// NewInbox creates an Inbox reading from prefix.
func NewInbox(store *Client, prefix string, logger *zap.Logger) *Inbox {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Inbox{
		store:     store,
		prefix:    prefix,
		processed: "processed/" + prefix,
		logger:    logger,
		claimed:   make(map[string]bool),
	}
}

// Fetch returns up to max messages not already handed out. The message ID
// is the object key.
func (b *Inbox) Fetch(ctx context.Context, max int) ([]domain.InboundMessage, error) {
	b.mu.Lock()
	inFlight := len(b.claimed)
	b.mu.Unlock()

	objs, err := b.store.list(ctx, b.prefix, max+inFlight)
	if err != nil {
		return nil, err
	}

	var msgs []domain.InboundMessage
	for _, o := range objs {
		if len(msgs) == max {
			break
		}
		if strings.HasSuffix(o.Key, "/") || !b.claim(o.Key) {
			continue
		}
		msg, err := b.load(ctx, o)
		if err != nil {
			b.release(o.Key)
			b.logger.Warn("s3.Inbox.Fetch: skipping unreadable message", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

// Ack moves the message object under the processed prefix.
func (b *Inbox) Ack(ctx context.Context, messageID string) error {
	defer b.release(messageID)
	dst := b.processed + strings.TrimPrefix(messageID, b.prefix)
	if err := b.store.move(ctx, messageID, dst); err != nil {
		return fmt.Errorf("acknowledging %s: %w", messageID, err)
	}
	return nil
}

func (b *Inbox) claim(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed[key] {
		return false
	}
	b.claimed[key] = true
	return true
}

func (b *Inbox) release(key string) {
	b.mu.Lock()
	delete(b.claimed, key)
	b.mu.Unlock()
}

func (b *Inbox) load(ctx context.Context, o object) (*domain.InboundMessage, error) {
	data, err := b.store.Download(ctx, "", o.Key)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(path.Ext(o.Key), ".json") {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decoding envelope: %w", err)
		}
		return b.fromEnvelope(ctx, o, &env)
	}

	meta, contentType, err := b.store.head(ctx, o.Key)
	if err != nil {
		return nil, err
	}
	return &domain.InboundMessage{
		Source:     "s3",
		MessageID:  o.Key,
		Sender:     meta["sender"],
		Subject:    meta["subject"],
		ReceivedAt: o.LastModified,
		Attachments: []domain.Attachment{{
			FileName:    path.Base(o.Key),
			ContentType: contentType,
			Data:        data,
		}},
	}, nil
}

func (b *Inbox) fromEnvelope(ctx context.Context, o object, env *Envelope) (*domain.InboundMessage, error) {
	msg := &domain.InboundMessage{
		Source:     "s3",
		MessageID:  o.Key,
		Sender:     env.Sender,
		Subject:    env.Subject,
		Body:       env.Body,
		ReceivedAt: env.ReceivedAt,
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = o.LastModified
	}
	if msg.Body == "" && env.HTMLBody != "" {
		msg.Body = intake.BodyText(env.HTMLBody)
	}

	for _, a := range env.Attachments {
		data := a.Data
		if a.Key != "" {
			var err error
			if data, err = b.store.Download(ctx, "", a.Key); err != nil {
				return nil, fmt.Errorf("attachment %s: %w", a.FileName, err)
			}
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Data:        data,
		})
	}
	return msg, nil
}
