// Command extract runs the pipeline on local PDF files and prints the results
// as JSON. Usage: extract [flags] file.pdf [file.pdf ...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"materialflow/internal/bootstrap"
	"materialflow/internal/config"
	"materialflow/internal/domain"
	"materialflow/internal/export"
	"materialflow/internal/logging"
	"materialflow/internal/repository/postgres"
)

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite database")
		sender  = flag.String("sender", "cli@localhost", "sender recorded on the request")
		subject = flag.String("subject", "", "subject recorded on the request")
		body    = flag.String("body", "", "free-text instructions passed with the documents")
		out     = flag.String("out", "", "also write an XLSX export to this path")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: extract [flags] file.pdf [file.pdf ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*inmem, *sender, *subject, *body, *out, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(inmem bool, sender, subject, body, out string, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if inmem {
		cfg.DB = config.DBConfig{Driver: postgres.DriverSQLite, Path: "file::memory:"}
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	msg := &domain.InboundMessage{
		Source:     "cli",
		MessageID:  uuid.New().String(),
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			FileName:    filepath.Base(p),
			ContentType: domain.ContentTypePDF,
			Data:        data,
		})
	}

	results, err := app.Pipeline.Process(ctx, msg)
	if err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	for i := range results {
		logger.Info("extract: document done",
			zap.String("document_id", results[i].DocumentID),
			zap.String("outcome", string(results[i].Outcome)),
		)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if out != "" {
		return writeXLSX(out, results)
	}
	return nil
}

func writeXLSX(path string, results []domain.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := export.NewXLSXWriter(f)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteResults(results); err != nil {
		return err
	}
	return w.Close()
}
