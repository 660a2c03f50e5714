// Package server hosts the Fiber HTTP service: request-id middleware, panic
// recovery, the plain-text error mapping, the static usage page served at "/",
// and the catch-all route that hands every other path to the cache
// coordinator. Paths under "/-/" are reserved for diagnostics registered by
// the routes subpackage. Keep exports narrow and accept explicit dependencies.
package server
