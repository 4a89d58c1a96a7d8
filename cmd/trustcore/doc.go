// Package main (cmd/trustcore) implements the trust registry server for the
// document binding platform.
//
// The server provides HTTP endpoints for document registration and ownership,
// executor delegation, resolver configuration, infrastructure component
// registration, governance stage management, and capability verification
// against attestation claims.
//
// Documents are identified by the hash of their content together with the
// tokenizer component that produced them. Resolver components registered for
// a document are notified of document events over HTTP; their endpoints are
// discovered directly or via DNS SRV lookup for dns+http endpoints.
//
// Capability verification is optional and enabled by passing --verifier-id
// and --attestation-provider-id. Without it the verification endpoint reports
// every proof as unverifiable rather than failing requests outright.
//
// Configuration is handled through command-line flags, with separate settings
// for the governance authorities, attestation pipeline, HTTP endpoints,
// logging, and performance tuning.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and
// optional profiling endpoints.
//
// Example usage:
//
//	trustcore --listen-addr=0.0.0.0:8080 \
//	    --governance-authority=0123456789abcdef0123456789abcdef01234567 \
//	    --emergency-authority=89abcdef0123456789abcdef0123456789abcdef \
//	    --network-id=docbind-mainnet
package main
