package models

import "time"

// Snapshot of a tenant as returned by the tenant authority for one
// validated request. Never persisted by the gateway.
type TenantIdentity struct {
	TenantID           string `json:"tenantId"`
	DatabaseName       string `json:"databaseName"`
	OwnerEmail         string `json:"ownerEmail"`
	Industry           string `json:"industry"`
	SubscriptionPlan   string `json:"subscriptionPlan"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}

// Metadata the authority reports about the presented access token.
// The token itself stays opaque to the gateway.
type TokenMeta struct {
	ExpiryDate time.Time  `json:"expiryDate"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	Active     bool       `json:"active"`
}
