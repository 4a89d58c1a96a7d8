// Package httpserver exposes the trust core over HTTP: the document
// registry, component registry, capability verification, and governance
// operations under /api/v1, plus liveness, readiness, drain, and metrics
// endpoints for operation behind a load balancer.
package httpserver
