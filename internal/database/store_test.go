package database

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/localnerve/shopdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEngines = []Engine{NDJSONEngine{}, SQLiteEngine{}}

func openTestStore(t *testing.T, engine Engine, opts Options) Store {
	t.Helper()
	var files sync.RWMutex
	s, err := engine.Open("pallets", filepath.Join(t.TempDir(), "pallets"+engine.Ext()), opts, &files)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreCRUD(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{})

			created, err := s.Insert(Record{"x": 1, "y": 2, "palates": []interface{}{Record{"mark": "A1"}}})
			require.NoError(t, err)
			id := created.ID()
			require.NotEmpty(t, id)
			assert.Equal(t, float64(1), created["x"])

			got, err := s.FindByID(id)
			require.NoError(t, err)
			assert.Equal(t, created, got)

			updated, err := s.UpdateByID(id, Record{"y": 5, IDField: "ignored"})
			require.NoError(t, err)
			assert.Equal(t, id, updated.ID())
			assert.Equal(t, float64(5), updated["y"])
			assert.Equal(t, float64(1), updated["x"])

			_, err = s.UpdateByID("missing", Record{"y": 1})
			assert.ErrorIs(t, err, types.ErrNotFound)

			removed, err := s.DeleteByID(id)
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = s.DeleteByID(id)
			require.NoError(t, err)
			assert.False(t, removed)

			_, err = s.FindByID(id)
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestStoreInsertionOrderSurvivesReload(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{})

			var ids []string
			for i := 0; i < 5; i++ {
				rec, err := s.Insert(Record{"n": i})
				require.NoError(t, err)
				ids = append(ids, rec.ID())
			}
			_, err := s.UpdateByID(ids[1], Record{"n": 10})
			require.NoError(t, err)
			_, err = s.DeleteByID(ids[3])
			require.NoError(t, err)

			require.NoError(t, s.Load())

			all, err := s.FindAll()
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, []string{ids[0], ids[1], ids[2], ids[4]}, []string{all[0].ID(), all[1].ID(), all[2].ID(), all[3].ID()})
			assert.Equal(t, float64(10), all[1]["n"])
		})
	}
}

func TestStoreUniqueField(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{Unique: []string{"username"}})

			first, err := s.Insert(Record{"username": "sam"})
			require.NoError(t, err)
			_, err = s.Insert(Record{"username": "sam"})
			assert.ErrorIs(t, err, types.ErrConflict)

			second, err := s.Insert(Record{"username": "alex"})
			require.NoError(t, err)
			_, err = s.UpdateByID(second.ID(), Record{"username": "sam"})
			assert.ErrorIs(t, err, types.ErrConflict)

			// re-saving a record's own value is not a conflict
			_, err = s.UpdateByID(first.ID(), Record{"username": "sam", "role": "admin"})
			assert.NoError(t, err)
		})
	}
}

func TestStoreTruncateKeepsFile(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{})
			_, err := s.Insert(Record{"a": 1})
			require.NoError(t, err)

			require.NoError(t, s.Truncate())

			_, err = os.Stat(s.Path())
			require.NoError(t, err)
			all, err := s.FindAll()
			require.NoError(t, err)
			assert.Empty(t, all)

			_, err = s.Insert(Record{"a": 2})
			require.NoError(t, err)
			require.NoError(t, s.Load())
			all, err = s.FindAll()
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStoreClosedIsUnavailable(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{})
			require.NoError(t, s.Close())

			_, err := s.Insert(Record{"a": 1})
			assert.ErrorIs(t, err, types.ErrUnavailable)
			_, err = s.FindAll()
			assert.ErrorIs(t, err, types.ErrUnavailable)
		})
	}
}

func TestReadFileLimit(t *testing.T) {
	for _, engine := range testEngines {
		t.Run(engine.Name(), func(t *testing.T) {
			s := openTestStore(t, engine, Options{})
			for i := 0; i < 10; i++ {
				_, err := s.Insert(Record{"n": i})
				require.NoError(t, err)
			}
			require.NoError(t, s.Close())

			contents, err := engine.ReadFile(s.Path(), 3)
			require.NoError(t, err)
			assert.True(t, contents.Truncated)
			assert.Equal(t, 10, contents.TotalLines)
			assert.Equal(t, 3, contents.ShowingLast)
			require.Len(t, contents.Records, 3)
			assert.Equal(t, float64(7), contents.Records[0]["n"])
			assert.Equal(t, float64(9), contents.Records[2]["n"])

			_, err = engine.ReadFile(filepath.Join(t.TempDir(), "nope"+engine.Ext()), 3)
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestNDJSONReadFileMarksBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	require.NoError(t, os.WriteFile(path, []byte("{\"_id\":\"1\",\"n\":1}\nnot json\n\n{\"_id\":\"2\"}\n"), 0o644))

	contents, err := NDJSONEngine{}.ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, contents.Records, 3)
	assert.Equal(t, true, contents.Records[1]["_parseError"])
	assert.Equal(t, "not json", contents.Records[1]["raw"])
	assert.False(t, contents.Truncated)
}

func TestNDJSONLoadSkipsBadLinesAndTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	data := "{\"_id\":\"1\",\"n\":1}\ngarbage\n{\"_id\":\"2\",\"n\":2}\n{\"_id\":\"1\",\"$$deleted\":true}\n{\"$$indexCreated\":{\"fieldName\":\"x\"}}\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	var files sync.RWMutex
	s, err := NDJSONEngine{}.Open("jobs", path, Options{}, &files)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0].ID())
}

func TestNDJSONCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.db")
	var files sync.RWMutex
	store, err := NDJSONEngine{}.Open("cart", path, Options{}, &files)
	require.NoError(t, err)
	s := store.(*ndjsonStore)
	defer s.Close()

	rec, err := s.Insert(Record{"qty": 1})
	require.NoError(t, err)
	for i := 2; i < 6; i++ {
		_, err = s.UpdateByID(rec.ID(), Record{"qty": i})
		require.NoError(t, err)
	}
	gone, err := s.Insert(Record{"qty": 0})
	require.NoError(t, err)
	_, err = s.DeleteByID(gone.ID())
	require.NoError(t, err)

	require.NoError(t, s.Compact())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, splitLines(raw), 1)

	// appends still land in the rewritten file
	_, err = s.Insert(Record{"qty": 7})
	require.NoError(t, err)
	require.NoError(t, s.Load())
	all, err := s.FindAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, float64(5), all[0]["qty"])
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{"palates": []interface{}{map[string]interface{}{"mark": "A"}}}
	c := r.Clone()
	c["palates"].([]interface{})[0].(map[string]interface{})["mark"] = "B"
	assert.Equal(t, "A", r["palates"].([]interface{})[0].(map[string]interface{})["mark"])
}
