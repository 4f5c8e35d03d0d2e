package services

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if strings.HasSuffix(name, "/") {
			continue
		}
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestExportSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	export, err := NewArchiveTransfer(env.engine).Export("DB_v001")
	require.NoError(t, err)
	assert.Equal(t, "DB_v001.zip", export.FileName())

	var buf bytes.Buffer
	n, err := export.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	names := zipNames(t, buf.Bytes())
	assert.Contains(t, names, "pallets.db")
	assert.NotContains(t, names, "application.db")
}

func TestExportSnapshotNotFound(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	_, err := NewArchiveTransfer(env.engine).Export("DB_v001")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = NewArchiveTransfer(env.engine).Export("../../etc")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// stalledWriter blocks its first Write until release is closed.
type stalledWriter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	buf     bytes.Buffer
}

func newStalledWriter() *stalledWriter {
	return &stalledWriter{started: make(chan struct{}), release: make(chan struct{})}
}

func (w *stalledWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.started)
		<-w.release
	})
	return w.buf.Write(p)
}

func TestStalledDownloadDoesNotBlockMaintenance(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	ctx := context.Background()
	_, err := env.engine.CreateSnapshot(ctx)
	require.NoError(t, err)

	export, err := NewArchiveTransfer(env.engine).Export("DB_v001")
	require.NoError(t, err)

	w := newStalledWriter()
	written := make(chan error, 1)
	go func() {
		_, err := export.WriteTo(w)
		written <- err
	}()
	<-w.started

	done := make(chan error, 1)
	go func() {
		if _, err := env.engine.CreateSnapshot(ctx); err != nil {
			done <- err
			return
		}
		if _, err := env.engine.ListSnapshots(ctx); err != nil {
			done <- err
			return
		}
		done <- env.engine.PruneSnapshot("DB_v001")
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(w.release)
		t.Fatal("maintenance blocked by a pending download")
	}

	close(w.release)
	require.NoError(t, <-written)
	assert.Contains(t, zipNames(t, w.buf.Bytes()), "pallets.db")
}

func TestExportSurvivesPrune(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	export, err := NewArchiveTransfer(env.engine).Export("DB_v001")
	require.NoError(t, err)
	require.NoError(t, env.engine.PruneSnapshot("DB_v001"))

	var buf bytes.Buffer
	_, err = export.WriteTo(&buf)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"x":1`)
}

func TestExportCloseWithoutWrite(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	env.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	_, err := env.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	export, err := NewArchiveTransfer(env.engine).Export("DB_v001")
	require.NoError(t, err)
	assert.NoError(t, export.Close())
	assert.NoError(t, export.Close())
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	src.insert(t, "pallets", database.Record{"x": 1.0, "y": 2.0})
	src.insert(t, "drawings", database.Record{"drawingNumber": "D-1"})
	src.insert(t, "jobs", database.Record{"title": "weld"})
	_, err := src.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	export, err := NewArchiveTransfer(src.engine).Export("DB_v001")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = export.WriteTo(&buf)
	require.NoError(t, err)

	dst := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	result, err := NewArchiveTransfer(dst.engine).Import(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, "archive", result.Source)
	assert.False(t, result.Restarting)

	for _, name := range []string{"pallets", "drawings", "jobs", "cart", "fabricators", "logs"} {
		want, err := os.ReadFile(filepath.Join(src.cfg.BackupDir, "DB_v001", name+".db"))
		require.NoError(t, err)
		got, err := os.ReadFile(dst.registry.Path(name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	assert.Len(t, dst.all(t, "pallets"), 1)
	assert.Len(t, dst.all(t, "jobs"), 1)
}

func TestImportSQLiteRoundTrip(t *testing.T) {
	src := newTestEnv(t, testConfig(t, config.EngineSQLite))
	doc := src.insert(t, "cart", database.Record{"item": "bolt", "qty": 4.0})
	_, err := src.engine.CreateSnapshot(context.Background())
	require.NoError(t, err)

	export, err := NewArchiveTransfer(src.engine).Export("DB_v001")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = export.WriteTo(&buf)
	require.NoError(t, err)

	dst := newTestEnv(t, testConfig(t, config.EngineSQLite))
	_, err = NewArchiveTransfer(dst.engine).Import(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	cart := dst.all(t, "cart")
	require.Len(t, cart, 1)
	assert.Equal(t, doc.ID(), cart[0].ID())
	assert.Equal(t, "bolt", cart[0]["item"])
}

func TestImportSkipsProtectedAndUnknownEntries(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	user := env.insert(t, config.CollectionApplication, database.Record{"type": "user", "username": "kim"})

	data := buildZip(t, map[string]string{
		"application.db": `{"_id":"intruder","type":"user","username":"mallory"}` + "\n",
		"pallets.db":     `{"_id":"p1","x":1,"y":2}` + "\n",
		"notes.txt":      "hello",
		"widgets.db":     `{"_id":"w1"}` + "\n",
	})
	result, err := NewArchiveTransfer(env.engine).Import(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, []string{"pallets.db"}, result.Files)

	users := env.all(t, config.CollectionApplication)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID(), users[0].ID())
	assert.NoFileExists(t, filepath.Join(env.cfg.StorageDir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(env.cfg.StorageDir, "widgets.db"))

	pallets := env.all(t, "pallets")
	require.Len(t, pallets, 1)
	assert.Equal(t, "p1", pallets[0].ID())
}

func TestImportRejectsUnsafeEntryNames(t *testing.T) {
	for _, name := range []string{"../pallets.db", "../../etc/passwd", "/tmp/pallets.db", "nested/pallets.db", `..\pallets.db`, "dir/"} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
			before := env.insert(t, "pallets", database.Record{"x": 1.0, "y": 1.0})

			data := buildZip(t, map[string]string{
				"pallets.db": `{"_id":"p2","x":2,"y":2}` + "\n",
				name:         "payload",
			})
			_, err := NewArchiveTransfer(env.engine).Import(bytes.NewReader(data), int64(len(data)))
			assert.ErrorIs(t, err, types.ErrValidation)

			// nothing was written
			pallets := env.all(t, "pallets")
			require.Len(t, pallets, 1)
			assert.Equal(t, before.ID(), pallets[0].ID())
			assert.NoFileExists(t, filepath.Join(filepath.Dir(env.cfg.StorageDir), "pallets.db"))
		})
	}
}

func TestImportRejectsUselessArchives(t *testing.T) {
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	transfer := NewArchiveTransfer(env.engine)

	garbage := []byte("definitely not a zip")
	_, err := transfer.Import(bytes.NewReader(garbage), int64(len(garbage)))
	assert.ErrorIs(t, err, types.ErrValidation)

	onlyProtected := buildZip(t, map[string]string{"application.db": "{}\n"})
	_, err = transfer.Import(bytes.NewReader(onlyProtected), int64(len(onlyProtected)))
	assert.ErrorIs(t, err, types.ErrValidation)

	otherEngine := buildZip(t, map[string]string{"pallets.sqlite": "x"})
	_, err = transfer.Import(bytes.NewReader(otherEngine), int64(len(otherEngine)))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestImportEnforcesSizeLimit(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.MaxImportBytes = 16
	env := newTestEnv(t, cfg)

	data := buildZip(t, map[string]string{"pallets.db": `{"_id":"p1","x":1,"y":2,"note":"far too long"}` + "\n"})
	_, err := NewArchiveTransfer(env.engine).Import(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Empty(t, env.all(t, "pallets"))
}

func TestImportRestartPolicy(t *testing.T) {
	cfg := testConfig(t, config.EngineNDJSON)
	cfg.RestorePolicy = config.RestoreRestart
	env := newTestEnv(t, cfg)

	data := buildZip(t, map[string]string{"jobs.db": `{"_id":"j1","title":"cut"}` + "\n"})
	result, err := NewArchiveTransfer(env.engine).Import(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.True(t, result.Restarting)
	assert.Equal(t, 1, env.restarter.count())
	assert.True(t, env.registry.Sealed())

	raw, err := os.ReadFile(env.registry.Path("jobs"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"j1"`)
}
