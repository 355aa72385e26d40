package domain

import "time"

// Credential is the gateway-issued bearer token cached between requests.
type Credential struct {
	AccessToken    string
	ExpiresAt      time.Time
	NotificationID string
	UpdatedAt      time.Time
}

// ValidAt reports whether the credential can still be presented to the gateway at t.
func (c Credential) ValidAt(t time.Time) bool {
	return c.AccessToken != "" && c.ExpiresAt.After(t)
}
