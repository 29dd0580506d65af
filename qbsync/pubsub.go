package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// SyncPubSubPayload is the message a trigger publishes and the push worker
// consumes. LocalIds narrows an event-triggered run to the records that
// changed.
type SyncPubSubPayload struct {
	TenantId  string             `json:"tenantId"`
	Action    models.SyncAction  `json:"action"`
	Trigger   models.SyncTrigger `json:"trigger"`
	LocalIds  []int              `json:"localIds,omitempty"`
	RequestId string             `json:"requestId,omitempty"`
}

// PubSubPushEnvelope is the wrapper Google Pub/Sub wraps around pushed
// messages.
type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func syncTopicName() string {
	name := strings.TrimSpace(os.Getenv("QBO_SYNC_TOPIC"))
	if name == "" {
		name = "qbo-sync"
	}
	return name
}

// PublishSyncRequest enqueues one sync run request. The push subscription
// delivers it back to PubSubPushHandler, possibly on another instance.
func PublishSyncRequest(ctx context.Context, payload SyncPubSubPayload) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := syncTopicName()
	topic := client.Topic(topicName)
	if envBoolDefault("QBO_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler runs the sync request carried by a pushed message.
// Malformed messages are acked with 204 so they don't redeliver forever;
// transient run failures return 500 so Pub/Sub retries the delivery.
func PubSubPushHandler(o *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_QBO_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.TenantId == "" || !payload.Action.Valid() {
			c.Status(204)
			return
		}
		trigger := payload.Trigger
		if trigger == "" {
			trigger = models.SyncTriggeredEvent
		}

		ctx := c.Request.Context()
		var runErr error
		if payload.Action == models.SyncActionFull {
			_, runErr = o.FullSync(ctx, payload.TenantId, trigger)
		} else {
			_, runErr = o.Push(ctx, payload.TenantId, payload.Action, trigger, payload.LocalIds)
		}

		switch {
		case runErr == nil, errors.Is(runErr, ErrRunInProgress):
			c.Status(204)
		case IsRetryable(runErr):
			c.Status(500)
		default:
			config.LogError(config.GetLogger(), "qbsync", "PubSubPushHandler", payload.TenantId, payload, runErr)
			c.Status(204)
		}
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
