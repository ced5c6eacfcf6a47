// Package memory holds the guidance documents composed into the assistant
// preamble. Documents live under a /-separated key namespace: keys below
// "global/" apply to every board, keys below "boards/<boardID>/" only to that
// board.
package memory

import "context"

// Key prefixes of the guidance namespace.
const (
	NamespaceGlobal = "global"
	NamespaceBoards = "boards"
)

// Document is one guidance document.
type Document struct {
	Key  string
	Body []byte
}

// Store reads guidance documents from external storage. Implementations
// perform I/O on each call without caching.
type Store interface {
	// List returns every document key, sorted.
	List(ctx context.Context) ([]string, error)
	// Load retrieves documents for the given keys in the order requested.
	Load(ctx context.Context, keys ...string) ([]Document, error)
}

// BoardPrefix returns the key prefix of documents scoped to boardID.
func BoardPrefix(boardID string) string {
	return NamespaceBoards + "/" + boardID + "/"
}
