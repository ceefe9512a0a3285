//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(_ string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite is not compiled in; rebuild with -tags sqlite", ErrUnsupportedBackend)
}

// DefaultStoreKind is the backend used when none is named.
func DefaultStoreKind() string {
	return "memory"
}
