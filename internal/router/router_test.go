package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/domain"
	"materialflow/internal/handler"
	"materialflow/internal/router"
	"materialflow/internal/service"
	"materialflow/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetup_AuthAndPublicRoutes(t *testing.T) {
	tokens := service.NewTokenService(config.FeedbackConfig{Secret: "s3cret", Issuer: "materialflow"})
	results := new(mocks.MockResultRepository)
	lifecycle := new(mocks.MockLifecycleRepository)
	feedback := new(mocks.MockFeedbackService)

	results.On("List", mock.Anything, mock.Anything, 0, 20).Return([]domain.Result{}, 0, nil)
	feedback.On("Submit", mock.Anything, mock.Anything).Return(nil, domain.ErrFeedbackTokenInvalid)

	engine := router.Setup(
		router.Options{RequireAuth: true},
		tokens,
		handler.NewDocumentHandler(new(mocks.MockPipelineService), results, lifecycle, 10),
		handler.NewExportHandler(results),
		handler.NewFeedbackHandler(feedback),
		handler.NewHealthHandler(),
		zap.NewNop(),
	)

	serve := func(req *http.Request) int {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/healthz", nil)))
	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/api/v1/results", nil)))

	token, err := tokens.IssueServiceToken("erp-sync", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/results", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(req))

	// Feedback is reachable without a service token; the link token is checked by the service.
	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/api/v1/feedback?token=x&verdict=correct", nil)))
	feedback.AssertCalled(t, "Submit", mock.Anything, mock.Anything)
}
