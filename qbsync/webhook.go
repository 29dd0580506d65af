package qbsync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const webhookSignatureHeader = "intuit-signature"

const webhookProcessTimeout = 25 * time.Second

// WebhookNotification is the platform's change-notification payload: one
// entry per realm, each listing the changed objects.
type WebhookNotification struct {
	EventNotifications []struct {
		RealmId         string `json:"realmId"`
		DataChangeEvent struct {
			Entities []WebhookEntity `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

type WebhookEntity struct {
	Name        string `json:"name"`
	Id          string `json:"id"`
	Operation   string `json:"operation"`
	LastUpdated string `json:"lastUpdated"`
}

// verifyWebhookSignature checks the HMAC-SHA256 the platform signs each
// delivery with. An unset verifier token rejects everything: an unsigned
// endpoint would let anyone trigger pulls.
func verifyWebhookSignature(body []byte, signature string) bool {
	token := strings.TrimSpace(os.Getenv("QBO_WEBHOOK_VERIFIER_TOKEN"))
	if token == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// tenantForRealm resolves which tenant a realm's notifications belong to.
func tenantForRealm(ctx context.Context, db *gorm.DB, realmId string) (string, error) {
	var conn models.Connection
	err := db.WithContext(ctx).
		Where("realm_id = ? AND provider = ?", realmId, models.IntegrationProviderQuickBooks).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return conn.TenantId, nil
}

// WebhookHandler ingests the platform's change notifications and applies each
// changed object through the single-entity pull path. The platform retries
// non-2xx responses, so per-entity failures are logged and acked; only a bad
// signature is rejected.
func WebhookHandler(o *Orchestrator) gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		if !config.WebhookEndpointEnabled() {
			c.Status(http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusOK)
			return
		}
		if !verifyWebhookSignature(body, c.GetHeader(webhookSignatureHeader)) {
			c.Status(http.StatusUnauthorized)
			return
		}

		var notification WebhookNotification
		if err := json.Unmarshal(body, &notification); err != nil {
			c.Status(http.StatusOK)
			return
		}

		// The platform expects a fast ack; pulls run detached from the
		// request with their own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
		go func() {
			defer cancel()
			processWebhookNotification(ctx, o, logger, notification)
		}()

		c.Status(http.StatusOK)
	}
}

func processWebhookNotification(ctx context.Context, o *Orchestrator, logger *logrus.Logger, notification WebhookNotification) {
	db := config.GetDB()
	if db == nil {
		return
	}
	for _, event := range notification.EventNotifications {
		tenantId, err := tenantForRealm(ctx, db, event.RealmId)
		if err != nil {
			config.LogError(logger, "qbsync", "processWebhookNotification", event.RealmId, nil, err)
			continue
		}
		if tenantId == "" {
			logger.WithFields(logrus.Fields{"realm_id": event.RealmId}).Warn("webhook for unknown realm ignored")
			continue
		}

		for _, entity := range event.DataChangeEvent.Entities {
			entityType := EntityForRemoteKind(entity.Name)
			if entityType == "" || entityType == models.EntityTypeExpense {
				logger.WithFields(logrus.Fields{
					"tenant": tenantId,
					"kind":   entity.Name,
					"id":     entity.Id,
				}).Debug("webhook entity kind not pulled, skipped")
				continue
			}
			if err := o.PullOne(ctx, tenantId, entityType, entity.Id); err != nil {
				config.LogError(logger, "qbsync", "processWebhookNotification", tenantId, entity, err)
			}
		}
	}
}
