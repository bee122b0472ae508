// Package storage provides the key-value persistence layer used by trackify.
//
// It backs:
//   - The cached network snapshot record (one key, whole-record rewrites)
//   - Scheduler registrations that must survive a restart
//
// Drivers: "file" (single JSON document), "sqlite" and "memory".
package storage
