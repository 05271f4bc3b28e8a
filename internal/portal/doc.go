// Package portal assembles the portal services from configuration.
//
// A Runtime opens each service's stores, picks its token validator and
// returns a ready-to-run server.Server. Several services may share one
// Runtime, in which case databases and client connections are shared.
package portal
