// Package common contains shared constants and sentinel errors used across
// notesync components.
package common

const (
	// AccessTokenHeaderName carries the raw access token in gRPC metadata.
	AccessTokenHeaderName = "access_token"
	// AuthorizationHeaderName carries "Bearer <token>" for clients that
	// cannot set custom metadata keys.
	AuthorizationHeaderName = "authorization"
)

// MaxErrorLength bounds error text persisted next to outbox entries.
const MaxErrorLength = 500
