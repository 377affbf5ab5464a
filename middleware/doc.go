// Package middleware adapts goCreds access-token verification to net/http.
//
// [Guard] reads the Authorization bearer token, verifies it with
// Engine.VerifyAccess and stores the claims on the request context, where
// [ClaimsFromContext] finds them. [RequireRole] narrows a guarded route to a set
// of roles.
//
// Verification is offline: no storage is touched on the request path.
package middleware
