package qbsync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// RunArchiver persists pruned sync runs before they are deleted from the
// database.
type RunArchiver interface {
	Archive(ctx context.Context, tenantId string, runs []models.SyncRun) error
}

type gcsRunArchiver struct {
	bucket string
}

// NewGCSRunArchiver returns nil when no archive bucket is configured; the
// audit log treats a nil archiver as "delete without archiving".
func NewGCSRunArchiver() RunArchiver {
	bucket := strings.TrimSpace(os.Getenv("QBO_SYNC_ARCHIVE_BUCKET"))
	if bucket == "" {
		return nil
	}
	return &gcsRunArchiver{bucket: bucket}
}

func gcsClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Set GCS_CREDENTIALS_JSON to provide explicit JSON locally.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func (a *gcsRunArchiver) Archive(ctx context.Context, tenantId string, runs []models.SyncRun) error {
	if len(runs) == 0 {
		return nil
	}
	client, err := gcsClient(ctx)
	if err != nil {
		return wrapStorage("archive client", err)
	}
	defer client.Close()

	payload, err := json.Marshal(runs)
	if err != nil {
		return wrapStorage("archive encode", err)
	}

	objectKey := fmt.Sprintf("sync-runs/%s/%s.json", tenantId, time.Now().UTC().Format("20060102T150405Z"))
	w := client.Bucket(a.bucket).Object(objectKey).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return wrapStorage("archive write", err)
	}
	if err := w.Close(); err != nil {
		return wrapStorage("archive close", err)
	}
	return nil
}
