package core

import (
	"context"
	"fmt"
	"os"

	blobcore "panelcore/internal/blob/core"
	blobfs "panelcore/internal/infra/blob/fs"
	blobmem "panelcore/internal/infra/blob/memory"
	blobs3 "panelcore/internal/infra/blob/s3"
	"panelcore/internal/infra/persistence/memory"
	"panelcore/internal/infra/persistence/postgres"
	"panelcore/internal/infra/persistence/sqlite"
	"panelcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

func newMemoryStore() PersistentStore {
	return memory.NewStore(DefaultRulesEngine())
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	PANELCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	PANELCORE_SQLITE_PATH: path to sqlite file (default ./panelcore.db)
//	PANELCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	driver := os.Getenv("PANELCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("PANELCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("PANELCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore selects a snapshot archive backend using environment
// variables. Defaults to the filesystem store.
//
//	PANELCORE_BLOB_DRIVER: memory|fs|s3 (default fs)
//	PANELCORE_BLOB_FS_ROOT: filesystem root (default ./archivedata)
//	PANELCORE_BLOB_S3_*: see the s3 store package
func OpenBlobStore(ctx context.Context) (blobcore.Store, error) {
	driver := os.Getenv("PANELCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(blobcore.DriverFilesystem)
	}
	switch blobcore.Driver(driver) {
	case blobcore.DriverMemory:
		return blobmem.New(), nil
	case blobcore.DriverFilesystem:
		return blobfs.New(os.Getenv("PANELCORE_BLOB_FS_ROOT"))
	case blobcore.DriverS3:
		return blobs3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// DefaultRulesEngine returns the engine carrying the curation invariants
// evaluated on every commit.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(entityNameRule{})
	engine.Register(strSequenceRule{})
	engine.Register(regionScoresRule{})
	engine.Register(versionOrderRule{})
	engine.Register(moiVocabularyRule{})
	return engine
}
