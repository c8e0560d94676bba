// Package api provides the admin HTTP API for Strata.
//
// It exposes the store's diagnostics as structured endpoints: health,
// pool/cache/monitor statistics, slow queries, migration status and
// verification, plus cache invalidation. The surface is intended for
// localhost operators and dashboards, not for application traffic;
// application reads and writes go through the store directly.
//
// The server follows the same lifecycle pattern as the other optional
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
