package qbsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"gorm.io/gorm"
)

// AccessToken is what the external auth service maintains per tenant: a
// currently valid bearer token and the remote company (realm) it belongs to.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	RealmId     string `json:"realm_id"`
}

// TokenProvider is the boundary to the external OAuth collaborator. A nil
// token with a nil error means "sync is not authorized for this tenant"; the
// API client turns that into an AuthError without attempting any call.
type TokenProvider interface {
	ValidToken(ctx context.Context, tenantId string) (*AccessToken, error)
}

const tokenCacheLifespan = 60 * time.Second

// dbTokenProvider reads the per-tenant connection row the external auth
// service keeps refreshed. Lookups are cached briefly in redis since every
// remote call needs one.
type dbTokenProvider struct {
	db func() *gorm.DB
}

func NewDBTokenProvider(db func() *gorm.DB) TokenProvider {
	return &dbTokenProvider{db: db}
}

func (p *dbTokenProvider) ValidToken(ctx context.Context, tenantId string) (*AccessToken, error) {
	cacheKey := "QBOToken:" + tenantId
	var cached AccessToken
	if ok, err := config.GetRedisObject(cacheKey, &cached); err == nil && ok && cached.AccessToken != "" {
		return &cached, nil
	}

	db := p.db()
	if db == nil {
		return nil, wrapStorage("token lookup", errors.New("database not ready"))
	}

	var conn models.Connection
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantId, models.IntegrationProviderQuickBooks).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStorage("token lookup", err)
	}

	if conn.Status != models.ConnectionStatusConnected {
		return nil, nil
	}
	if conn.AccessTokenRef == "" || conn.RealmId == "" {
		return nil, nil
	}
	if conn.TokenExpiresAt != nil && !conn.TokenExpiresAt.After(time.Now()) {
		return nil, nil
	}

	token := &AccessToken{AccessToken: conn.AccessTokenRef, RealmId: conn.RealmId}
	_ = config.SetRedisObject(cacheKey, token, tokenCacheLifespan)
	return token, nil
}
