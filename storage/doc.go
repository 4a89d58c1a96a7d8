// Package storage implements content-addressed artifact backends used by the
// component registry to fetch a component's executable form for identity
// verification.
//
// Backends are created from location URIs:
//
//   - file:// - local filesystem storage
//   - s3://   - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS distributed storage
//   - vault:// - HashiCorp Vault KV v2
//
// A multi-backend aggregates several locations for redundancy: stores go to
// every available backend, fetches return the first hit. All backends address
// artifacts by the SHA-256 hash of their content, so a backend returning
// substituted bytes is caught either here (content address mismatch on
// content-addressed stores) or by the registry's identity digest gate.
package storage
