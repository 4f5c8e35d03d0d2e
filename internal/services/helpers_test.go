package services

import (
	"sync"
	"testing"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/stretchr/testify/require"
)

type fakeRestarter struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeRestarter) ScheduleRestart(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func (f *fakeRestarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

func testConfig(t *testing.T, engine string) *config.Config {
	t.Helper()
	return &config.Config{
		StorageDir:           t.TempDir(),
		StorageEngine:        engine,
		Collections:          config.DefaultCollections(),
		InspectLimit:         1000,
		BackupDir:            t.TempDir(),
		BackupPrefix:         "DB_v",
		MaxBackups:           3,
		ProtectedCollections: []string{config.CollectionApplication},
		RestorePolicy:        config.RestoreReload,
		MaxImportBytes:       1 << 20,
		MasterSetupKey:       "setup-key",
		AdminKey:             "admin-key",
		AccessPolicy:         config.PolicySharedKey,
		LogRetention:         100,
	}
}

type testEnv struct {
	cfg       *config.Config
	registry  *database.Registry
	engine    *BackupEngine
	restarter *fakeRestarter
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	registry, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	restarter := &fakeRestarter{}
	return &testEnv{
		cfg:       cfg,
		registry:  registry,
		engine:    NewBackupEngine(cfg, registry, restarter),
		restarter: restarter,
	}
}

func (e *testEnv) insert(t *testing.T, collection string, rec database.Record) database.Record {
	t.Helper()
	store, err := e.registry.Collection(collection)
	require.NoError(t, err)
	doc, err := store.Insert(rec)
	require.NoError(t, err)
	return doc
}

func (e *testEnv) all(t *testing.T, collection string) []database.Record {
	t.Helper()
	store, err := e.registry.Collection(collection)
	require.NoError(t, err)
	recs, err := store.FindAll()
	require.NoError(t, err)
	return recs
}
