package qbsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"bitbucket.org/mmdatafocus/qbo_sync/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

type ConnectionResponse struct {
	Status  string `json:"status"`
	RealmId string `json:"realmId,omitempty"`
}

type StatusResponse struct {
	Connection        ConnectionResponse        `json:"connection"`
	LastSyncAt        *string                   `json:"lastSyncAt,omitempty"`
	LastSuccessSyncAt *string                   `json:"lastSuccessSyncAt,omitempty"`
	Settings          models.ConnectionSettings `json:"settings"`
	InProgress        []models.SyncAction       `json:"inProgress,omitempty"`
}

type TriggerSyncRequest struct {
	Action   models.SyncAction `json:"action" validate:"required"`
	LocalIds []int             `json:"localIds"`
	Inline   bool              `json:"inline"`
}

type SyncRunResponse struct {
	ID           uint               `json:"id"`
	Action       models.SyncAction  `json:"action"`
	Status       models.SyncRunStatus `json:"status"`
	TriggeredBy  models.SyncTrigger `json:"triggeredBy"`
	StartedAt    string             `json:"startedAt"`
	CompletedAt  *string            `json:"completedAt,omitempty"`
	DurationMs   int64              `json:"durationMs"`
	ItemsSynced  int                `json:"itemsSynced"`
	ItemsFailed  int                `json:"itemsFailed"`
	ItemsSkipped int                `json:"itemsSkipped"`
	Errors       []string           `json:"errors,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type UpdateSettingsRequest struct {
	ExpenseAccountRemoteId string `json:"expenseAccountRemoteId"`
	DepositAccountRemoteId string `json:"depositAccountRemoteId"`
}

type PruneRunsRequest struct {
	Keep int `json:"keep" validate:"min=0"`
}

func resolveTenantID(c *gin.Context) (string, error) {
	tenantId, ok := utils.GetTenantIdFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(tenantId) == "" {
		return "", errors.New("unauthorized")
	}
	return strings.TrimSpace(tenantId), nil
}

func getConnection(c *gin.Context, tenantId string) (*models.Connection, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	var conn models.Connection
	err := db.WithContext(c.Request.Context()).
		Where("tenant_id = ? AND provider = ?", tenantId, models.IntegrationProviderQuickBooks).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func StatusHandler(audit AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := getConnection(c, tenantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{Status: models.ConnectionStatusDisconnected},
			})
			return
		}

		var inProgress []models.SyncAction
		for _, action := range []models.SyncAction{
			models.SyncActionCustomers, models.SyncActionInvoices,
			models.SyncActionExpenses, models.SyncActionPayments, models.SyncActionFull,
		} {
			running, err := audit.InProgress(c.Request.Context(), tenantId, action)
			if err == nil && running {
				inProgress = append(inProgress, action)
			}
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:  conn.Status,
				RealmId: conn.RealmId,
			},
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Settings:          models.DecodeConnectionSettings(conn.SettingsJSON),
			InProgress:        inProgress,
		})
	}
}

// TriggerSyncHandler queues a run through Pub/Sub, or runs it inline when the
// request asks for it (used by small tenants and smoke tests).
func TriggerSyncHandler(o *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil || !req.Action.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
			return
		}

		conn, err := getConnection(c, tenantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.ConnectionStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		if req.Inline {
			var result *RunResult
			var runErr error
			if req.Action == models.SyncActionFull {
				result, runErr = o.FullSync(c.Request.Context(), tenantId, models.SyncTriggeredManual)
			} else {
				result, runErr = o.Push(c.Request.Context(), tenantId, req.Action, models.SyncTriggeredManual, req.LocalIds)
			}
			if errors.Is(runErr, ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": runErr.Error()})
				return
			}
			if runErr != nil && result == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"id":      result.RunId,
				"status":  result.Status,
				"synced":  result.Totals.Synced,
				"failed":  result.Totals.Failed,
				"skipped": result.Totals.Skipped,
			})
			return
		}

		err = PublishSyncRequest(c.Request.Context(), SyncPubSubPayload{
			TenantId: tenantId,
			Action:   req.Action,
			Trigger:  models.SyncTriggeredManual,
			LocalIds: req.LocalIds,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
	}
}

func SyncHistoryHandler(audit AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		action := models.SyncAction(strings.TrimSpace(c.Query("action")))
		if action != "" && !action.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
			return
		}

		runs, err := audit.List(c.Request.Context(), tenantId, limit, action)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func LastRunHandler(audit AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		action := models.SyncAction(strings.TrimSpace(c.Query("action")))
		if action != "" && !action.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
			return
		}

		run, err := audit.LastRun(c.Request.Context(), tenantId, action)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(*run))
	}
}

func PruneRunsHandler(audit AuditLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		req := PruneRunsRequest{Keep: 100}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keep count"})
			return
		}

		if err := audit.Prune(c.Request.Context(), tenantId, req.Keep); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, err := resolveTenantID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		settings := models.EncodeConnectionSettings(models.ConnectionSettings{
			ExpenseAccountRemoteId: strings.TrimSpace(req.ExpenseAccountRemoteId),
			DepositAccountRemoteId: strings.TrimSpace(req.DepositAccountRemoteId),
		})

		conn, err := getConnection(c, tenantId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			conn = &models.Connection{
				TenantId:     tenantId,
				Provider:     models.IntegrationProviderQuickBooks,
				Status:       models.ConnectionStatusDisconnected,
				SettingsJSON: settings,
			}
			if err := db.WithContext(c.Request.Context()).Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			err := db.WithContext(c.Request.Context()).Model(conn).Updates(map[string]interface{}{
				"settings_json": settings,
				"updated_at":    time.Now(),
			}).Error
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:           run.ID,
		Action:       run.Action,
		Status:       run.Status,
		TriggeredBy:  run.TriggeredBy,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:  formatTime(run.CompletedAt),
		DurationMs:   run.DurationMs,
		ItemsSynced:  run.ItemsSynced,
		ItemsFailed:  run.ItemsFailed,
		ItemsSkipped: run.ItemsSkipped,
		Errors:       run.Errors(),
	}
}
