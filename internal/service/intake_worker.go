package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// IntakeConfig holds settings for the intake worker.
type IntakeConfig struct {
	PollInterval   time.Duration
	Concurrency    int
	MessageTimeout time.Duration
}

// IntakeWorker polls an inbound source and runs each message through the pipeline.
type IntakeWorker struct {
	source   port.InboundSource
	pipeline PipelineService
	cfg      IntakeConfig
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewIntakeWorker creates a new IntakeWorker.
func NewIntakeWorker(source port.InboundSource, pipeline PipelineService, cfg IntakeConfig, logger *zap.Logger) *IntakeWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &IntakeWorker{
		source:   source,
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight messages have finished.
func (w *IntakeWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	w.logger.Info("intakeWorker: started",
		zap.Duration("poll", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("intakeWorker: shutting down, waiting for in-flight messages")
			w.wg.Wait()
			w.logger.Info("intakeWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			msgs, err := w.source.Fetch(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.logger.Error("intakeWorker: fetch failed", zap.Error(err))
				continue
			}

			for i := range msgs {
				msg := msgs[i]
				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()
					w.handle(&msg)
				}()
			}
		}
	}
}

// handle runs one message on a context detached from polling, so a message
// that was fetched is finished and acknowledged even during shutdown.
func (w *IntakeWorker) handle(msg *domain.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.MessageTimeout)
	defer cancel()

	logger := w.logger.With(zap.String("message_id", msg.MessageID), zap.String("sender", msg.Sender))
	logger.Info("intakeWorker: dispatching message", zap.Int("attachments", len(msg.Attachments)))

	results, err := w.pipeline.Process(ctx, msg)
	if err != nil {
		// Registration failures are final; the sender was already notified.
		logger.Warn("intakeWorker: message rejected", zap.Error(err))
	}
	for i := range results {
		logger.Info("intakeWorker: document done",
			zap.String("document_id", results[i].DocumentID),
			zap.String("outcome", string(results[i].Outcome)),
		)
	}

	if err := w.source.Ack(ctx, msg.MessageID); err != nil {
		logger.Error("intakeWorker: ack failed", zap.Error(err))
	}
}
