// Package middleware provides the HTTP request-processing chain in
// front of the engine: session-token identity, permission guards, and
// rate limiting.
//
// ActorMiddleware resolves the Bearer session token to an account and
// threads the acting user's id through the request context; every
// engine call and audit entry reads it from there rather than from any
// ambient global.
//
// RequirePlatformPermission and RequireGroupPermission call the
// resolver before the handler runs. They guard mutations only — UI
// rendering decisions go through the permission endpoints instead, so
// a denied check here is always a 403, never a hidden button.
//
// RateLimiter is a per-key in-memory token bucket; RedisRateLimiter is
// the fixed-window Redis variant shared across instances, used for the
// bulk admin endpoints.
package middleware
