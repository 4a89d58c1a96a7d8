// Package main (cmd/admin) implements a command-line client for a trustcore
// server.
//
// It groups operations the way the API does: document commands for
// registration, ownership, executor delegation and resolver configuration;
// component commands for the infrastructure component registry; and
// governance commands for stage transitions, freezing and the system pause.
//
// All identities and component ids are passed as unprefixed hex strings.
// Commands that mutate state take the acting identity via --caller.
//
// Example usage:
//
//	trustcore-admin --server-addr=http://127.0.0.1:8080 \
//	    document register --caller=0123...4567 --content-hash=89ab...cdef
//
//	trustcore-admin governance state
package main
