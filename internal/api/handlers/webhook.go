package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/logger"
	"stocksync/internal/models"
	"stocksync/internal/store"

	"github.com/gin-gonic/gin"
)

// WebhookStore is the persistence surface the ingestor needs.
type WebhookStore interface {
	SaveWebhookEvent(event *models.WebhookEvent) error
	CountPendingWebhooks() (int64, error)
}

// Publisher queues a persisted webhook id for asynchronous processing.
type Publisher interface {
	PublishWebhook(ctx context.Context, webhookID string) error
}

type WebhookHandler struct {
	store     WebhookStore
	publisher Publisher
	config    *config.Config
	logger    *logger.Logger
}

func NewWebhookHandler(store WebhookStore, publisher Publisher, cfg *config.Config, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:     store,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// webhookRequest is the platform's delivery body.
type webhookRequest struct {
	ID            string     `json:"_id"`
	Topic         string     `json:"topic"`
	Resource      string     `json:"resource"`
	UserID        int64      `json:"user_id"`
	ApplicationID int64      `json:"application_id"`
	Sent          *time.Time `json:"sent"`
	Attempts      int        `json:"attempts"`
	Received      *time.Time `json:"received"`
}

// itemResource matches the two resource kinds that carry a product id.
var itemResource = regexp.MustCompile(`^/(items|user-products)/([A-Za-z0-9_-]+)`)

// Ingest validates and durably records an inbound webhook, then queues it
// for asynchronous processing. It must return well before the platform's
// delivery timeout, so no upstream call happens here.
func (h *WebhookHandler) Ingest(c *gin.Context) {
	if !h.validateOrigin(c) {
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if missing := missingFields(&req); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing required fields",
			"missing": missing,
		})
		return
	}

	if isIgnoredTopic(req.Topic) {
		h.logger.Debug("Ignoring webhook %s with topic %s", req.ID, req.Topic)
		c.JSON(http.StatusOK, gin.H{
			"status":  "ignored",
			"ignored": true,
			"topic":   req.Topic,
		})
		return
	}
	if !isSupportedTopic(req.Topic) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported topic", "topic": req.Topic})
		return
	}

	event := h.buildEvent(c, &req)

	// Durability boundary: past this point the event survives a crash and
	// the recovery sweep can pick it up even if the publish below is lost.
	if err := h.store.SaveWebhookEvent(event); err != nil {
		if err == store.ErrDuplicateWebhook {
			h.logger.Debug("Duplicate delivery for webhook %s", req.ID)
			c.JSON(http.StatusOK, gin.H{"status": "duplicate", "webhook_id": req.ID})
			return
		}
		h.logger.Error("Failed to persist webhook %s: %v", req.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist webhook"})
		return
	}

	if err := h.publisher.PublishWebhook(c.Request.Context(), req.ID); err != nil {
		h.logger.Warn("Failed to queue webhook %s, recovery sweep will pick it up: %v", req.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "webhook_id": req.ID})
}

// Status reports the ingestor's configuration and backlog.
func (h *WebhookHandler) Status(c *gin.Context) {
	pending, err := h.store.CountPendingWebhooks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pending webhooks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"supported_topics": models.SupportedTopics,
		"ignored_topics":   models.IgnoredTopics,
		"allowed_origins":  h.config.WebhookAllowedIPs,
		"pending_webhooks": pending,
	})
}

// validateOrigin enforces the production origin policy. Unknown source IPs
// are accepted with a warning because the platform's published IP list
// changes; only a wrong content type is rejected outright.
func (h *WebhookHandler) validateOrigin(c *gin.Context) bool {
	if h.config.Env != "production" {
		return true
	}

	contentType := c.GetHeader("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		c.JSON(http.StatusForbidden, gin.H{"error": "unexpected content type"})
		return false
	}

	clientIP := c.ClientIP()
	for _, allowed := range h.config.WebhookAllowedIPs {
		if clientIP == allowed {
			return true
		}
	}

	h.logger.Warn("Webhook from unlisted IP %s, accepting", clientIP)
	return true
}

func missingFields(req *webhookRequest) []string {
	var missing []string
	if req.ID == "" {
		missing = append(missing, "_id")
	}
	if req.Topic == "" {
		missing = append(missing, "topic")
	}
	if req.Resource == "" {
		missing = append(missing, "resource")
	}
	if req.UserID == 0 {
		missing = append(missing, "user_id")
	}
	if req.ApplicationID == 0 {
		missing = append(missing, "application_id")
	}
	return missing
}

func isSupportedTopic(topic string) bool {
	for _, t := range models.SupportedTopics {
		if topic == t {
			return true
		}
	}
	return false
}

func isIgnoredTopic(topic string) bool {
	for _, t := range models.IgnoredTopics {
		if topic == t {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) buildEvent(c *gin.Context, req *webhookRequest) *models.WebhookEvent {
	event := &models.WebhookEvent{
		WebhookID:     req.ID,
		Topic:         req.Topic,
		Resource:      req.Resource,
		UserID:        req.UserID,
		ApplicationID: req.ApplicationID,
		Attempts:      req.Attempts,
		Sent:          req.Sent,
		ReceivedAt:    time.Now(),
		ClientIP:      c.ClientIP(),
	}

	if match := itemResource.FindStringSubmatch(req.Resource); match != nil {
		itemID := match[2]
		event.ItemID = &itemID
	}

	if headers, err := json.Marshal(c.Request.Header); err == nil {
		event.Headers = string(headers)
	}

	return event
}
