// Package http exposes the movie night API over chi.
//
// Everything lives under /api. Mutating requests carry the X-CSRF-Token
// header matching the movienight_csrf cookie unless they authenticate with
// a bearer token. Public routes:
//   - POST /api/auth/plex/pin, GET /api/auth/plex/pin/{id}: Plex PIN sign-in.
//     A claimed PIN returns {"token","expiresAt","created","user"} and sets
//     the movienight_session cookie.
//   - POST /api/auth/local: username/password sign-in for local users.
//   - POST /api/auth/logout: revokes the current session and clears the cookie.
//   - GET /api/invites/{token}?pin=, POST /api/invites/{token}/join: guest
//     invite validation and redemption.
//
// The remaining routes require a session: users, groups and members,
// schedules, movie nights, nominations and votes, invites, movie search,
// settings, integration status and the poster proxy. Request and response
// DTOs live next to their handlers.
//
// /healthz and /metrics sit outside /api.
package http
