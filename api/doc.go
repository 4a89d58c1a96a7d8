/*
Package api defines the request and response types of the trust core HTTP
API, plus the HTTP server configuration shared by the server and the CLI
binaries.

The API surface covers:

  - Document registry operations: registration, ownership transfer, executor
    delegation, resolver configuration with lock and emergency unlock.
  - Capability verification against attestation proofs.
  - Component registry operations: registration, resolution, deactivation,
    reactivation, and enumeration.
  - Governance: stage transitions, freezing, and the system pause flag.

The clients subpackage wraps the surface for programmatic and CLI use.
*/
package api
