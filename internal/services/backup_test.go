package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "DB_v001", FormatVersion("DB_v", 1))
	assert.Equal(t, "DB_v042", FormatVersion("DB_v", 42))
	assert.Equal(t, "DB_v1000", FormatVersion("DB_v", 1000))
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"DB_v001", 1, true},
		{"DB_v1000", 1000, true},
		{"DB_v", 0, false},
		{"DB_vabc", 0, false},
		{"DB_v-1", 0, false},
		{"DB_v1a", 0, false},
		{"../../etc", 0, false},
		{"other001", 0, false},
	}
	for _, tt := range tests {
		n, ok := ParseVersion("DB_v", tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, n, tt.name)
	}
}

func TestCreateSnapshotNumbersMonotonically(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.MaxBackups = 10
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := env.engine.CreateSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, FormatVersion("DB_v", i), result.VersionName)
		assert.Equal(t, i, result.TotalKept)
	}
}

func TestCreateSnapshotIgnoresForeignEntries(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	for _, name := range []string{"DB_vx", "DB_v12abc", "notes"} {
		require.NoError(t, os.Mkdir(filepath.Join(env.cfg.BackupDir, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.BackupDir, "DB_v099"), []byte("file"), 0o644))

	result, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DB_v001", result.VersionName)
	assert.DirExists(t, filepath.Join(env.cfg.BackupDir, "DB_vx"))
	assert.DirExists(t, filepath.Join(env.cfg.BackupDir, "notes"))
}

func TestCreateSnapshotWidensPastWidth(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	require.NoError(t, os.Mkdir(filepath.Join(env.cfg.BackupDir, "DB_v999"), 0o755))

	result, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DB_v1000", result.VersionName)
	assert.Equal(t, []string{"DB_v1000", "DB_v999"}, result.ActiveVersions)
}

func TestRetentionKeepsHighestVersions(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := env.engine.CreateSnapshot(ctx)
		require.NoError(t, err)
		want := i
		if want > env.cfg.MaxBackups {
			want = env.cfg.MaxBackups
		}
		assert.Equal(t, want, result.TotalKept)
	}

	entries, err := os.ReadDir(env.cfg.BackupDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"DB_v003", "DB_v004", "DB_v005"}, names)
	assert.NoDirExists(t, filepath.Join(env.cfg.BackupDir, "DB_v001"))
	assert.NoDirExists(t, filepath.Join(env.cfg.BackupDir, "DB_v002"))
}

func TestSnapshotSkipsProtectedCollections(t *testing.T) {
	for _, engine := range []string{config.EngineNDJSON, config.EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			env := newTestEnv(t, testConfig(t, engine))
			env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})
			env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})

			result, err := env.engine.CreateSnapshot(context.Background())
			require.NoError(t, err)

			dir := filepath.Join(env.cfg.BackupDir, result.VersionName)
			ext := env.registry.Engine().Ext()
			assert.FileExists(t, filepath.Join(dir, "pallets"+ext))
			assert.NoFileExists(t, filepath.Join(dir, config.CollectionApplication+ext))
		})
	}
}

func TestSnapshotLeavesNoStagingBehind(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(env.cfg.BackupDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), e.Name())
	}
}

func TestListSnapshots(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	ctx := context.Background()

	list, err := env.engine.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	env.insert(t, "fabricators", database.Record{"name": "Cell 1"})
	for i := 0; i < 2; i++ {
		_, err := env.engine.CreateSnapshot(ctx)
		require.NoError(t, err)
	}

	list, err = env.engine.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "DB_v002", list[0].VersionName)
	assert.Equal(t, 2, list[0].Version)
	assert.Equal(t, "DB_v001", list[1].VersionName)
	assert.Equal(t, len(config.DefaultCollections())-1, list[0].FileCount)
	assert.Greater(t, list[0].SizeInBytes, int64(0))
	assert.NotEmpty(t, list[0].SizeFormatted)
	for _, f := range list[0].Files {
		assert.False(t, env.cfg.IsProtectedFile(f), f)
	}
}

func TestListSnapshotsMissingRoot(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.BackupDir = filepath.Join(t.TempDir(), "absent")
	env := newTestEnv(t, cfg)

	list, err := env.engine.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListSnapshotsHidesProtectedFiles(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	dir := filepath.Join(env.cfg.BackupDir, "DB_v001")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.db"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pallets.db"), []byte("{}\n"), 0o644))

	list, err := env.engine.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"pallets.db"}, list[0].Files)
	assert.Equal(t, 1, list[0].FileCount)
}

func TestInspectSnapshotFile(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	env.insert(t, "pallets", database.Record{"x": 3.0, "y": 4.0})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	file, err := env.engine.InspectSnapshotFile("DB_v001", "pallets.db")
	require.NoError(t, err)
	assert.Equal(t, "DB_v001", file.VersionName)
	assert.Equal(t, "pallets.db", file.FileName)
	assert.Len(t, file.Records, 2)
	assert.False(t, file.Truncated)
}

func TestInspectSnapshotFileForbidsProtected(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)
	// even a planted copy is never read
	dir := filepath.Join(env.cfg.BackupDir, "DB_v001")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.db"), []byte(`{"username":"kim"}`+"\n"), 0o644))

	for _, file := range []string{"application.db", "application.json", "application.sqlite"} {
		got, err := env.engine.InspectSnapshotFile("DB_v001", file)
		assert.ErrorIs(t, err, types.ErrForbidden, file)
		assert.Nil(t, got)
	}
	_, err = env.engine.InspectSnapshotFile("DB_v003", "application.db")
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestInspectSnapshotFileNotFound(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	_, err = env.engine.InspectSnapshotFile("DB_v009", "pallets.db")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = env.engine.InspectSnapshotFile("DB_v001", "widgets.db")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = env.engine.InspectSnapshotFile("DB_v001", "../pallets.db")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = env.engine.InspectSnapshotFile("DB_v001", "notes.txt")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestInspectSnapshotFileMarksBadLines(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	dir := filepath.Join(env.cfg.BackupDir, "DB_v001")
	require.NoError(t, os.Mkdir(dir, 0o755))
	content := `{"_id":"a","x":1}` + "\n" + "not json\n" + `{"_id":"b","x":2}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pallets.db"), []byte(content), 0o644))

	file, err := env.engine.InspectSnapshotFile("DB_v001", "pallets.db")
	require.NoError(t, err)
	require.Len(t, file.Records, 3)
	assert.Equal(t, true, file.Records[1]["_parseError"])
	assert.Equal(t, "not json", file.Records[1]["raw"])
}

func TestPruneSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	require.NoError(t, env.engine.PruneSnapshot("DB_v001"))
	assert.NoDirExists(t, filepath.Join(env.cfg.BackupDir, "DB_v001"))

	err = env.engine.PruneSnapshot("DB_v001")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPruneSnapshotRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	outside := filepath.Join(filepath.Dir(env.cfg.BackupDir), "keep-me")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(env.cfg.BackupDir, "unrelated"), 0o755))

	for _, name := range []string{"../../etc", "../keep-me", "unrelated", "DB_v001/..", "", "DB_v"} {
		err := env.engine.PruneSnapshot(name)
		assert.ErrorIs(t, err, types.ErrNotFound, name)
	}
	assert.DirExists(t, outside)
	assert.DirExists(t, filepath.Join(env.cfg.BackupDir, "unrelated"))
}

func TestRestoreSnapshotReload(t *testing.T) {
	for _, engine := range []string{config.EngineNDJSON, config.EngineSQLite} {
		t.Run(engine, func(t *testing.T) {
			env := newTestEnv(t, testConfig(t, engine))
			ctx := context.Background()
			kept := env.insert(t, "pallets", database.Record{"x": 1.0, "y": 1.0})
			_, err := env.engine.CreateSnapshot(ctx)
			require.NoError(t, err)

			env.insert(t, "pallets", database.Record{"x": 9.0, "y": 9.0})
			user := env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})

			result, err := env.engine.RestoreSnapshot("DB_v001")
			require.NoError(t, err)
			assert.Equal(t, "DB_v001", result.Source)
			assert.False(t, result.Restarting)
			assert.NotContains(t, result.Files, config.CollectionApplication+env.registry.Engine().Ext())
			assert.Zero(t, env.restarter.count())

			pallets := env.all(t, "pallets")
			require.Len(t, pallets, 1)
			assert.Equal(t, kept.ID(), pallets[0].ID())

			// the protected collection is untouched
			users := env.all(t, config.CollectionApplication)
			require.Len(t, users, 1)
			assert.Equal(t, user.ID(), users[0].ID())
		})
	}
}

// failNthIncoming makes the nth rename of a staged file fail.
func failNthIncoming(t *testing.T, n int) {
	t.Helper()
	calls := 0
	rename = func(from, to string) error {
		if strings.HasPrefix(filepath.Base(from), incomingMark) {
			calls++
			if calls == n {
				return &os.LinkError{Op: "rename", Old: from, New: to, Err: os.ErrPermission}
			}
		}
		return os.Rename(from, to)
	}
	t.Cleanup(func() { rename = os.Rename })
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSwapInRollsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("old a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.db"), []byte("old b"), 0o644))
	failNthIncoming(t, 3)

	err := swapIn(dir, []string{"a.db", "b.db", "c.db"}, func(file, dst string) error {
		return os.WriteFile(dst, []byte("new "+file), 0o644)
	})
	require.Error(t, err)

	a, err := os.ReadFile(filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.Equal(t, "old a", string(a))
	b, err := os.ReadFile(filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.Equal(t, "old b", string(b))
	assert.ElementsMatch(t, []string{"a.db", "b.db"}, dirNames(t, dir))
}

func TestSwapInReplacesAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("old a"), 0o644))

	err := swapIn(dir, []string{"a.db", "b.db"}, func(file, dst string) error {
		return os.WriteFile(dst, []byte("new "+file), 0o644)
	})
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.Equal(t, "new a.db", string(a))
	assert.ElementsMatch(t, []string{"a.db", "b.db"}, dirNames(t, dir))
}

func TestRestoreSnapshotFailureKeepsLiveStore(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	ctx := context.Background()
	for _, name := range config.Resources {
		env.insert(t, name, database.Record{"n": 1.0})
	}
	_, err := env.engine.CreateSnapshot(ctx)
	require.NoError(t, err)
	for _, name := range config.Resources {
		env.insert(t, name, database.Record{"n": 2.0})
	}

	before := map[string][]byte{}
	for _, name := range config.Resources {
		raw, err := os.ReadFile(env.registry.Path(name))
		require.NoError(t, err)
		before[name] = raw
	}

	failNthIncoming(t, 2)
	_, err = env.engine.RestoreSnapshot("DB_v001")
	var me *types.MaintenanceError
	require.ErrorAs(t, err, &me)

	for _, name := range config.Resources {
		raw, err := os.ReadFile(env.registry.Path(name))
		require.NoError(t, err)
		assert.Equal(t, before[name], raw, name)
		assert.Len(t, env.all(t, name), 2, name)
	}
	for _, name := range dirNames(t, env.cfg.StorageDir) {
		assert.False(t, strings.HasPrefix(name, "."), name)
	}
}

func TestRestoreSnapshotRestartSeals(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.RestorePolicy = config.RestoreRestart
	env := newTestEnv(t, cfg)
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	result, err := env.engine.RestoreSnapshot("DB_v001")
	require.NoError(t, err)
	assert.True(t, result.Restarting)
	assert.Equal(t, 1, env.restarter.count())
	assert.True(t, env.registry.Sealed())

	_, err = env.registry.Collection("pallets")
	assert.ErrorIs(t, err, types.ErrUnavailable)
}

func TestRestoreSnapshotIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "jobs", database.Record{"title": "cut"})
	env.insert(t, "jobs", database.Record{"title": "weld"})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)
	env.insert(t, "jobs", database.Record{"title": "paint"})

	_, err = env.engine.RestoreSnapshot("DB_v001")
	require.NoError(t, err)
	once, err := os.ReadFile(env.registry.Path("jobs"))
	require.NoError(t, err)

	_, err = env.engine.RestoreSnapshot("DB_v001")
	require.NoError(t, err)
	twice, err := os.ReadFile(env.registry.Path("jobs"))
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Len(t, env.all(t, "jobs"), 2)
}

func TestRestoreSnapshotNotFound(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	_, err := env.engine.RestoreSnapshot("DB_v007")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = env.engine.RestoreSnapshot("../database")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRestoreSnapshotRejectsOtherEngine(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineSQLite))
	dir := filepath.Join(env.cfg.BackupDir, "DB_v001")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pallets.db"), []byte("{}\n"), 0o644))

	_, err := env.engine.RestoreSnapshot("DB_v001")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestFactoryReset(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 1.0})
	env.insert(t, "cart", database.Record{"item": "bolt"})
	env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})

	cleared, err := env.engine.FactoryReset()
	require.NoError(t, err)
	assert.Equal(t, len(config.DefaultCollections())-1, cleared)

	assert.Empty(t, env.all(t, "pallets"))
	assert.Empty(t, env.all(t, "cart"))
	assert.Len(t, env.all(t, config.CollectionApplication), 1)
	assert.FileExists(t, env.registry.Path("pallets"))
}

func TestConcurrentSnapshotsAreSerialized(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.MaxBackups = 20
	env := newTestEnv(t, cfg)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := env.engine.CreateSnapshot(context.Background())
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	list, err := env.engine.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, list, n)
	for i, info := range list {
		assert.Equal(t, fmt.Sprintf("DB_v%03d", n-i), info.VersionName)
	}
}
