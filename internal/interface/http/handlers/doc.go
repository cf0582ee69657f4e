// Package handlers contains the gin handlers and middleware of the theory API.
//
// # Endpoints
//
//	POST /theory/submit            submit one answered practice batch
//	GET  /theory/progress/:userId  points, streak, category mastery, achievements
//	GET  /health  /ready  /live    operational probes
//
// # Health Checks
//
// Checks run in parallel with a per-check timeout. Only critical checks
// (the store) make the service unready; the Redis check is informational
// because the engine falls back to in-process locking.
//
//	checker := handlers.NewHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.PingCheck(store), true)
//	checker.AddCheck("redis", handlers.PingCheck(cache), false)
package handlers
