// Package cloudfn handles Cloud Storage object events delivered as CloudEvents.
package cloudfn

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
	"materialflow/internal/service"
)

// FinalizedType is the CloudEvent type of a newly written object.
const FinalizedType = "google.cloud.storage.object.v1.finalized"

// GCSEvent is the data payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket      string            `json:"bucket"`
	Name        string            `json:"name"`
	ContentType string            `json:"contentType"`
	Generation  string            `json:"generation"`
	TimeCreated time.Time         `json:"timeCreated"`
	Metadata    map[string]string `json:"metadata"`
}

// ObjectHandler runs uploaded PDFs through the pipeline.
type ObjectHandler struct {
	pipeline service.PipelineService
	store    port.ObjectStorage
	prefix   string
	logger   *zap.Logger
}

// NewObjectHandler creates an ObjectHandler. Objects outside prefix are ignored.
func NewObjectHandler(pipeline service.PipelineService, store port.ObjectStorage, prefix string, logger *zap.Logger) *ObjectHandler {
	return &ObjectHandler{pipeline: pipeline, store: store, prefix: prefix, logger: logger}
}

// Handle processes one event. Events for other types, prefixes or non-PDF
// objects are acknowledged without work. Document failures are recorded in
// the results, so only infrastructure errors are returned and redelivered.
func (h *ObjectHandler) Handle(ctx context.Context, e cloudevents.Event) error {
	if e.Type() != FinalizedType {
		h.logger.Debug("cloudfn.Handle: ignoring event type", zap.String("type", e.Type()))
		return nil
	}

	var obj GCSEvent
	if err := json.Unmarshal(e.Data(), &obj); err != nil {
		h.logger.Error("cloudfn.Handle: failed to decode event data", zap.String("event_id", e.ID()), zap.Error(err))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	if !strings.HasPrefix(obj.Name, h.prefix) || !isPDF(&obj) {
		return nil
	}

	logger := h.logger.With(zap.String("bucket", obj.Bucket), zap.String("object", obj.Name))
	data, err := h.store.Download(ctx, obj.Bucket, obj.Name)
	if err != nil {
		logger.Error("cloudfn.Handle: download failed", zap.Error(err))
		return fmt.Errorf("downloading gs://%s/%s: %w", obj.Bucket, obj.Name, err)
	}

	received := obj.TimeCreated
	if received.IsZero() {
		received = e.Time()
	}
	msg := &domain.InboundMessage{
		Source:     "gcs",
		MessageID:  fmt.Sprintf("gs://%s/%s#%s", obj.Bucket, obj.Name, obj.Generation),
		Sender:     obj.Metadata["sender"],
		Subject:    obj.Metadata["subject"],
		ReceivedAt: received.UTC(),
		Attachments: []domain.Attachment{{
			FileName:    path.Base(obj.Name),
			ContentType: domain.ContentTypePDF,
			Data:        data,
		}},
	}

	results, err := h.pipeline.Process(ctx, msg)
	if err != nil {
		logger.Warn("cloudfn.Handle: object rejected", zap.Error(err))
		return nil
	}
	for i := range results {
		logger.Info("cloudfn.Handle: document done",
			zap.String("document_id", results[i].DocumentID),
			zap.String("outcome", string(results[i].Outcome)),
		)
	}
	return nil
}

func isPDF(obj *GCSEvent) bool {
	if obj.ContentType == domain.ContentTypePDF {
		return true
	}
	return strings.EqualFold(path.Ext(obj.Name), ".pdf")
}
