/*
Package clients provides a client library for the trustcore HTTP API.

TrustCoreClient wraps every API surface: document registration and
ownership, executor delegation, resolver configuration and locking,
capability verification, the component registry, and governance. Server-side
failures decode into api.ErrorResponse so callers can branch on the
operation and subject that failed.

# Example Usage

	client := clients.NewTrustCoreClient("http://127.0.0.1:8080")

	id, err := client.RegisterDocument(ctx, api.RegisterDocumentRequest{
	    Caller:      owner,
	    ContentHash: hash,
	})
	if err != nil {
	    return err
	}

	record, err := client.GetDocument(ctx, id)
*/
package clients
