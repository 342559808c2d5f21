package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stocksync/internal/config"
	"stocksync/internal/logger"
	"stocksync/internal/models"
	"stocksync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhookStore struct {
	saved   []*models.WebhookEvent
	saveErr error
	pending int64
}

func (f *fakeWebhookStore) SaveWebhookEvent(event *models.WebhookEvent) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, existing := range f.saved {
		if existing.WebhookID == event.WebhookID {
			return store.ErrDuplicateWebhook
		}
	}
	f.saved = append(f.saved, event)
	return nil
}

func (f *fakeWebhookStore) CountPendingWebhooks() (int64, error) {
	return f.pending, nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishWebhook(ctx context.Context, webhookID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, webhookID)
	return nil
}

func newTestRouter(st *fakeWebhookStore, pub *fakePublisher, env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:               env,
		WebhookAllowedIPs: []string{"54.88.218.97"},
	}
	handler := NewWebhookHandler(st, pub, cfg, logger.New("error"))

	router := gin.New()
	router.POST("/api/v1/webhooks", handler.Ingest)
	router.GET("/api/v1/webhooks/status", handler.Status)
	return router
}

func postWebhook(router *gin.Engine, body map[string]interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"_id":            "wh-1",
		"topic":          "stock-location",
		"resource":       "/user-products/MLA123/stock",
		"user_id":        42,
		"application_id": 777,
		"attempts":       1,
	}
}

func TestIngest_AcceptsAndQueues(t *testing.T) {
	st := &fakeWebhookStore{}
	pub := &fakePublisher{}
	router := newTestRouter(st, pub, "development")

	w := postWebhook(router, validBody())

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, st.saved, 1)

	event := st.saved[0]
	assert.Equal(t, "wh-1", event.WebhookID)
	assert.False(t, event.Processed)
	require.NotNil(t, event.ItemID)
	assert.Equal(t, "MLA123", *event.ItemID)

	assert.Equal(t, []string{"wh-1"}, pub.published)
}

func TestIngest_ExtractsItemIDFromItemsResource(t *testing.T) {
	st := &fakeWebhookStore{}
	router := newTestRouter(st, &fakePublisher{}, "development")

	body := validBody()
	body["topic"] = "items"
	body["resource"] = "/items/MLA987654"
	w := postWebhook(router, body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, st.saved, 1)
	require.NotNil(t, st.saved[0].ItemID)
	assert.Equal(t, "MLA987654", *st.saved[0].ItemID)
}

func TestIngest_MissingFields(t *testing.T) {
	st := &fakeWebhookStore{}
	router := newTestRouter(st, &fakePublisher{}, "development")

	body := validBody()
	delete(body, "_id")
	delete(body, "user_id")
	w := postWebhook(router, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"_id", "user_id"}, resp.Missing)
	assert.Empty(t, st.saved)
}

func TestIngest_IgnoredTopicAcknowledgedWithoutSideEffects(t *testing.T) {
	st := &fakeWebhookStore{}
	pub := &fakePublisher{}
	router := newTestRouter(st, pub, "development")

	body := validBody()
	body["topic"] = "orders_v2"
	w := postWebhook(router, body)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ignored"])

	assert.Empty(t, st.saved)
	assert.Empty(t, pub.published)
}

func TestIngest_UnsupportedTopicRejected(t *testing.T) {
	st := &fakeWebhookStore{}
	router := newTestRouter(st, &fakePublisher{}, "development")

	body := validBody()
	body["topic"] = "unsupported-xyz"
	w := postWebhook(router, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, st.saved)
}

func TestIngest_DuplicateDeliveryIsIdempotent(t *testing.T) {
	st := &fakeWebhookStore{}
	pub := &fakePublisher{}
	router := newTestRouter(st, pub, "development")

	first := postWebhook(router, validBody())
	second := postWebhook(router, validBody())

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)

	// Exactly one stored row and one queued processing attempt.
	assert.Len(t, st.saved, 1)
	assert.Len(t, pub.published, 1)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp["status"])
}

func TestIngest_PersistFailureReturns500(t *testing.T) {
	st := &fakeWebhookStore{saveErr: errors.New("db down")}
	router := newTestRouter(st, &fakePublisher{}, "development")

	w := postWebhook(router, validBody())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIngest_PublishFailureStillAccepts(t *testing.T) {
	st := &fakeWebhookStore{}
	pub := &fakePublisher{err: errors.New("kafka down")}
	router := newTestRouter(st, pub, "development")

	w := postWebhook(router, validBody())

	// Event is durable; the recovery sweep will process it later.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, st.saved, 1)
}

func TestIngest_ProductionRejectsNonJSONContentType(t *testing.T) {
	st := &fakeWebhookStore{}
	router := newTestRouter(st, &fakePublisher{}, "production")

	payload, _ := json.Marshal(validBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, st.saved)
}

func TestIngest_ProductionAcceptsUnlistedIP(t *testing.T) {
	// Fail-open policy: the upstream IP list changes, so unknown sources
	// are accepted with a warning rather than rejected.
	st := &fakeWebhookStore{}
	router := newTestRouter(st, &fakePublisher{}, "production")

	w := postWebhook(router, validBody())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, st.saved, 1)
}

func TestStatus_ReportsTopicsAndBacklog(t *testing.T) {
	st := &fakeWebhookStore{pending: 7}
	router := newTestRouter(st, &fakePublisher{}, "development")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SupportedTopics []string `json:"supported_topics"`
		PendingWebhooks int64    `json:"pending_webhooks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, models.SupportedTopics, resp.SupportedTopics)
	assert.Equal(t, int64(7), resp.PendingWebhooks)
}
