// Package common contains shared constants and sentinel errors used across
// buzzdrop components.
package common

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "session_token"

// ForwardedForHeader carries the original client address when the server
// runs behind a proxy. The first entry is the client.
const ForwardedForHeader = "X-Forwarded-For"

// UnknownAddress is recorded when the requester address cannot be determined.
const UnknownAddress = "unknown"
