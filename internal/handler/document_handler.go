package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/middleware"
	"materialflow/internal/port"
	"materialflow/internal/service"
)

// DocumentHandler handles document submission, result and lifecycle endpoints.
type DocumentHandler struct {
	pipeline  service.PipelineService
	results   port.ResultRepository
	lifecycle port.LifecycleRepository
	maxBytes  int64

	// background tracks async submissions still running.
	background sync.WaitGroup
}

// NewDocumentHandler creates a new DocumentHandler. maxUploadMB bounds the
// whole multipart request.
func NewDocumentHandler(
	pipeline service.PipelineService,
	results port.ResultRepository,
	lifecycle port.LifecycleRepository,
	maxUploadMB int64,
) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &DocumentHandler{
		pipeline:  pipeline,
		results:   results,
		lifecycle: lifecycle,
		maxBytes:  maxUploadMB << 20,
	}
}

// Submit handles POST /api/v1/documents
// @Summary Submit documents
// @Description Run one or more PDF attachments through the extraction pipeline. With async=true the
// @Description request returns immediately and results are retrieved later.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "PDF attachments"
// @Param sender formData string false "Sender address"
// @Param subject formData string false "Subject line"
// @Param body formData string false "Free-text instructions"
// @Param async query bool false "Process in the background"
// @Success 201 {object} Response{data=[]domain.Result} "Documents processed"
// @Success 202 {object} Response{data=SubmitAccepted} "Documents accepted for processing"
// @Failure 400 {object} ErrorResponseBody "Missing files"
// @Failure 413 {object} ErrorResponseBody "Request too large"
// @Failure 422 {object} ErrorResponseBody "No PDF attachments"
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(c, domain.ErrFileTooLarge)
			return
		}
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "multipart form with files is required")
		return
	}

	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "files field is required")
		return
	}

	msg := &domain.InboundMessage{
		Source:     "api",
		MessageID:  uuid.New().String(),
		Sender:     firstValue(form.Value["sender"]),
		Subject:    firstValue(form.Value["subject"]),
		Body:       firstValue(form.Value["body"]),
		ReceivedAt: time.Now().UTC(),
	}
	if msg.Sender == "" {
		msg.Sender = middleware.GetClientID(c)
	}
	for _, fh := range headers {
		att, err := readAttachment(fh)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_FILE", "could not read "+fh.Filename)
			return
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	logger := middleware.LoggerFrom(c).With(zap.String("message_id", msg.MessageID))
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		ctx := context.WithoutCancel(c.Request.Context())
		h.background.Add(1)
		go func() {
			defer h.background.Done()
			if _, err := h.pipeline.Process(ctx, msg); err != nil {
				logger.Warn("documentHandler.Submit: background message rejected", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: SubmitAccepted{MessageID: msg.MessageID}})
		return
	}

	results, err := h.pipeline.Process(c.Request.Context(), msg)
	if err != nil && len(results) == 0 {
		logger.Info("documentHandler.Submit: message rejected", zap.Error(err))
		HandleError(c, err)
		return
	}
	RespondCreated(c, results)
}

// Wait blocks until background submissions have finished or ctx is done.
// Call it after the HTTP server has stopped accepting requests.
func (h *DocumentHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readAttachment(fh *multipart.FileHeader) (domain.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Attachment{}, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Attachment{}, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return domain.Attachment{FileName: fh.Filename, ContentType: contentType, Data: data}, nil
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetResult handles GET /api/v1/documents/:id
// @Summary Get a document result
// @Description Get the stored result of a document together with its lifecycle log
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} Response{data=domain.Result} "Document result"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *DocumentHandler) GetResult(c *gin.Context) {
	id := c.Param("id")
	result, err := h.results.GetByDocumentID(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	log, err := h.lifecycle.ListByDocument(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	result.Lifecycle = log
	RespondOK(c, result)
}

// GetLifecycle handles GET /api/v1/documents/:id/lifecycle
// @Summary Get a document lifecycle
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} Response{data=[]domain.LifecycleEntry} "Lifecycle entries in order"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /documents/{id}/lifecycle [get]
func (h *DocumentHandler) GetLifecycle(c *gin.Context) {
	log, err := h.lifecycle.ListByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	if len(log) == 0 {
		HandleError(c, domain.ErrDocumentNotFound)
		return
	}
	RespondOK(c, log)
}

// ListResults handles GET /api/v1/results
// @Summary List results
// @Tags results
// @Produce json
// @Param group_id query string false "Attachment group"
// @Param outcome query string false "success, partial, flagged or failed"
// @Param sender query string false "Sender address"
// @Param offset query int false "Offset" default(0)
// @Param limit query int false "Limit" default(20)
// @Success 200 {object} Response{data=[]domain.Result} "Results, most recent first"
// @Security BearerAuth
// @Router /results [get]
func (h *DocumentHandler) ListResults(c *gin.Context) {
	offset, limit := parsePagination(c)
	results, total, err := h.results.List(c.Request.Context(), resultFilter(c), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, results, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// ListLifecycle handles GET /api/v1/lifecycle
// @Summary Query lifecycle entries
// @Tags lifecycle
// @Produce json
// @Param document_id query string false "Document ID"
// @Param to_state query string false "Target state"
// @Param agent query string false "Agent"
// @Param since query string false "RFC 3339 lower bound"
// @Param offset query int false "Offset" default(0)
// @Param limit query int false "Limit" default(20)
// @Success 200 {object} Response{data=[]domain.LifecycleEntry} "Entries, most recent first"
// @Failure 400 {object} ErrorResponseBody "Invalid since"
// @Security BearerAuth
// @Router /lifecycle [get]
func (h *DocumentHandler) ListLifecycle(c *gin.Context) {
	filter := port.LifecycleFilter{
		DocumentID: c.Query("document_id"),
		ToState:    domain.DocumentState(c.Query("to_state")),
		Agent:      c.Query("agent"),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}

	offset, limit := parsePagination(c)
	log, total, err := h.lifecycle.List(c.Request.Context(), filter, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, log, PagMeta{Total: total, Offset: offset, Limit: limit})
}

func resultFilter(c *gin.Context) port.ResultFilter {
	return port.ResultFilter{
		GroupID: c.Query("group_id"),
		Outcome: domain.Outcome(c.Query("outcome")),
		Sender:  c.Query("sender"),
	}
}
