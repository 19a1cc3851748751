// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "Invalid input")
//
// WriteDomainError maps the engine error taxonomy onto HTTP statuses, so
// handlers can return store errors directly:
//
//	if err := svc.AssignRole(ctx, groupID, userID, roleID); err != nil {
//		httputil.WriteDomainError(w, err)
//		return
//	}
//
// # Request Parsing
//
//	var req InviteRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
//	page, pageSize, err := httputil.ParsePagination(r, 50, 200)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(10*1024*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Actor identification and permission enforcement
//   - pkg/errdefs: The error taxonomy WriteDomainError understands
package httputil
