// Package server hosts pages over websockets.
//
// Each connection to {ws_path}/{component} bootstraps the named component
// into a new page owned by a session. Command batches are sent to the
// host as binary frames; element events from the host are decoded and
// posted onto the session's loop, so all page work runs on one goroutine.
//
//	srv := server.New(app, cfg.Server,
//	    server.WithLogger(logger),
//	    server.WithGatherer(reg),
//	    server.WithSessionObserver(collector),
//	)
//	err := srv.ListenAndServe(ctx)
//
// The server also serves Prometheus metrics and a health check.
package server
