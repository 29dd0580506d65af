package config

import (
	"os"
	"strings"
)

// LinkByEmailMatch enables linking an unmapped local customer to a pre-existing
// remote customer matched by primary email before falling back to a remote create.
//
// Set via env:
// - QBO_LINK_BY_EMAIL_MATCH=true
func LinkByEmailMatch() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_LINK_BY_EMAIL_MATCH")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// WebhookEndpointEnabled gates the inbound change-notification endpoint.
//
// Set via env:
// - QBO_WEBHOOK_ENABLED=false
func WebhookEndpointEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_WEBHOOK_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
