// Package http exposes the companion API over net/http.
//
// Every response uses the envelope {"success": bool, "data": ..., "error":
// "..."} plus a machine readable "code" and, for validation failures, a
// "fields" map. Authenticated routes expect "Authorization: Bearer <token>".
//
// Routes:
//   - POST /api/auth/token: exchanges {"email","password"} for an access token.
//   - GET /api/agenda?eventId=: public agenda ordered by time.
//   - PUT /api/agenda?eventId=: administrator import; replies with overlap warnings.
//   - GET /api/agenda/status, PUT /api/agenda/status/{itemId}: attendee bookmarks.
//   - GET /api/meeting-requests?role=requester|speaker&status=: request lists, newest first.
//   - POST /api/meeting-requests, GET /api/meeting-requests/{id},
//     POST /api/meeting-requests/{id}/cancel|accept|decline: the request lifecycle.
//   - GET /api/limits, GET /api/pass: quota snapshot and pass information.
//   - GET /api/speakers/{idOrSlug}, GET /api/speakers/{idOrSlug}/stats.
//   - GET /api/blocks, POST /api/blocks/{userId}: block list and toggle.
//   - GET /api/networking/stats, GET /api/meetings.
//   - GET /api/realtime: websocket stream of row changes.
//   - GET /api/users, POST /api/users: administrator account management.
//
// Status codes: 401 missing or invalid token, 403 permission denied or
// blocked, 404 not found, 409 duplicate pending request or stale transition,
// 422 validation, 429 request quota exhausted.
package http
