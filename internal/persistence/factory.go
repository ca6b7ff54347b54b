// Package persistence selects the durable collection driver from the
// process environment.
package persistence

import (
	"context"
	"fmt"
	"os"

	"patientcore/internal/blob"
	"patientcore/internal/persistence/blobkv"
	"patientcore/internal/persistence/memory"
	"patientcore/internal/persistence/postgres"
	"patientcore/internal/persistence/sqlite"
	"patientcore/pkg/domain"
)

// Open builds a Driver according to environment variables.
//
//	PATIENTCORE_STORAGE_DRIVER: memory|sqlite|postgres|blob (default sqlite)
//	PATIENTCORE_SQLITE_PATH: database file when driver=sqlite (default patientcore.db)
//	PATIENTCORE_POSTGRES_DSN: connection string when driver=postgres
//	(blob driver selection documented in the blob package)
func Open(ctx context.Context) (domain.Driver, error) {
	driver := os.Getenv("PATIENTCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.NewStore(os.Getenv("PATIENTCORE_SQLITE_PATH"))
	case "postgres":
		return postgres.NewStore(ctx, os.Getenv("PATIENTCORE_POSTGRES_DSN"))
	case "blob":
		blobs, err := blob.Open(ctx)
		if err != nil {
			return nil, err
		}
		return blobkv.New(blobs), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
