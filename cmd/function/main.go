// Command function is the Cloud Functions entry point: PDFs written to the
// upload bucket are run through the pipeline.
package main

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"materialflow/internal/bootstrap"
	"materialflow/internal/cloudfn"
	"materialflow/internal/config"
	"materialflow/internal/logging"
)

var (
	handler *cloudfn.ObjectHandler
	once    sync.Once
	initErr error
)

func init() {
	functions.CloudEvent("ProcessDocument", processDocument)
}

func main() {
	// Local runs; deployed functions are started by the platform.
	if err := funcframework.Start("8080"); err != nil {
		log.Fatalf("funcframework.Start: %v", err)
	}
}

func setup() (*cloudfn.ObjectHandler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if app.GCS == nil {
		return nil, errors.New("gcp.upload_bucket must be set for the function")
	}
	logger.Info("function: initialized", zap.String("prefix", cfg.GCP.EventPrefix))
	return cloudfn.NewObjectHandler(app.Pipeline, app.GCS, cfg.GCP.EventPrefix, logger), nil
}

func processDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		handler, initErr = setup()
	})
	if initErr != nil {
		log.Printf("function initialization failed: %v", initErr)
		return initErr
	}
	return handler.Handle(ctx, e)
}
