// Package server exposes the session history as a read-only JSON API.
//
// Routes:
//
//	GET /healthz           liveness and store reachability
//	GET /sessions          recent reports, filtered by ?kind= and ?limit=
//	GET /sessions/:id      one report
//	GET /stats             session counts per kind and terminal state
package server
