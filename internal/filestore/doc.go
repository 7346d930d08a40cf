// Package filestore manages the private file area that holds the database
// file, exports and their backups.
//
// The Manager opens the root directory and a named data subdirectory as
// os.Root handles on first use and keeps them until Close. Every file name
// is a plain name inside the data directory; names containing separators
// are rejected with ErrInvalidName.
//
// # Backups
//
// CreateBackup copies a file to <name>.backup-<timestamp>[-suffix].
// PruneBackups keeps the most recently modified backups:
//
//	m := filestore.New(dir, "", log)
//	if _, err := m.CreateBackup("modelstore.db", "pre-migrate"); err != nil {
//	    return err
//	}
//	removed, err := m.PruneBackups("modelstore.db", 5)
//
// # Quota and Persistence
//
// GetQuotaInfo returns nil and IsPersisted returns false when the platform
// or the directory cannot answer, instead of failing.
package filestore
