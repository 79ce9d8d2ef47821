// Package store holds the manifest.Store implementations.
package store

import "github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"

var (
	_ manifest.Store     = (*MemoryStore)(nil)
	_ manifest.TxManager = (*MemoryStore)(nil)
	_ manifest.Store     = (*PostgresStore)(nil)
	_ manifest.TxManager = (*TxManager)(nil)
)
