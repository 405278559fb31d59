package capture

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populatedStore returns a store holding a few records across categories.
func populatedStore(t *testing.T, path string) *Store {
	t.Helper()
	s := NewStore(path, NewSnapshot("", testTime))

	exchanges := []struct {
		method, url, body string
		status            int
		resp              string
	}{
		{"POST", "https://aura.build/api/projects?team=1", `{"name":"<x>","n":1.50}`, 201, `{"id":"p1"}`},
		{"GET", "https://aura.build/api/auth/session", "", 200, `"ok"`},
		{"GET", "https://aura.build/api/projects", "", 200, `[{"id":"p1"}]`},
		{"POST", "https://aura.build/api/projects?team=1", `{"name":"y"}`, 201, `{"id":"p2"}`},
	}
	for _, e := range exchanges {
		ex := newExchange(t, e.method, e.url, nil, e.body, e.status, nil, e.resp)
		rec := Extract(ex, nil, testTime)
		s.Record(Classify(rec.Path, rec.Method), rec.Key(), rec.Summary())
		s.Append(rec)
	}
	s.WithAuth(func(a *AuthInfo) {
		a.Method = ptr(AuthMethodBearer)
		a.TokenHeader = ptr("Authorization")
		a.SampleToken = ptr("abc...")
	})
	return s
}

func TestNewSnapshot_Defaults(t *testing.T) {
	snap := NewSnapshot("", testTime)

	data, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"captured_at": "2026-03-01T12:30:00Z",
		"base_url": "https://www.aura.build",
		"endpoints": {},
		"auth": {"method": null, "token_header": null, "sample_token": null},
		"requests": []
	}`, string(data))
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestStore_RecordOverwritesAndKeepsOrder(t *testing.T) {
	s := populatedStore(t, filepath.Join(t.TempDir(), "api.json"))
	snap := s.Snapshot()

	assert.Equal(t, []Category{CategoryProjects, CategoryAuth}, snap.Endpoints.Categories())
	projects := snap.Endpoints.Group(CategoryProjects)
	assert.Equal(t, []string{"POST /api/projects", "GET /api/projects"}, projects.Keys())

	latest, ok := projects.Get("POST /api/projects")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "y"}, latest.RequestBodyExample)
	assert.Equal(t, `{"id":"p2"}`, *latest.ResponseBodyExample)

	assert.Len(t, snap.Requests, 4)
	assert.Equal(t, 3, snap.EndpointCount())
}

func TestStore_PersistReloadPersistIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")

	require.NoError(t, populatedStore(t, first).Persist())

	loaded, err := Load(first)
	require.NoError(t, err)
	require.NoError(t, NewStore(second, loaded).Persist())

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	// HTML is not escaped and numbers keep their spelling.
	assert.Contains(t, string(a), `"name": "<x>"`)
	assert.Contains(t, string(a), `"n": 1.50`)
}

func TestStore_PersistOverwritesWithoutTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.json")
	s := populatedStore(t, path)

	require.NoError(t, s.Persist())
	require.NoError(t, s.Persist())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "api.json", entries[0].Name())

	var doc map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc["requests"], 4)
}

func TestStore_PersistError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewStore(filepath.Join(blocker, "api.json"), nil)
	err := s.Persist()
	require.Error(t, err)

	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, filepath.Join(blocker, "api.json"), perr.Path)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := populatedStore(t, filepath.Join(t.TempDir(), "api.json"))

	snap := s.Snapshot()
	snap.Requests[0].QueryParams["team"] = "changed"
	snap.Endpoints.Ensure(CategoryOther)
	*snap.Auth.SampleToken = "changed"

	again := s.Snapshot()
	assert.Equal(t, "1", again.Requests[0].QueryParams["team"])
	assert.Nil(t, again.Endpoints.Group(CategoryOther))
	assert.Equal(t, "abc...", *again.Auth.SampleToken)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidCapture)
	})

	t.Run("schema violation", func(t *testing.T) {
		path := filepath.Join(dir, "wrong.json")
		doc := `{"captured_at":"2026-03-01T12:30:00Z","base_url":"x","endpoints":{"bogus":{}},` +
			`"auth":{"method":null,"token_header":null,"sample_token":null},"requests":[]}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidCapture)
		assert.Contains(t, err.Error(), "/endpoints")
	})

	t.Run("missing requests", func(t *testing.T) {
		path := filepath.Join(dir, "short.json")
		doc := `{"captured_at":"2026-03-01T12:30:00Z","base_url":"x","endpoints":{},` +
			`"auth":{"method":null,"token_header":null,"sample_token":null}}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidCapture)
	})
}

func TestSchema_AcceptsPersistedFile(t *testing.T) {
	data, err := MarshalSnapshot(populatedStore(t, "unused").Snapshot())
	require.NoError(t, err)
	assert.NoError(t, ValidateDocument(data))
	assert.True(t, json.Valid(Schema()))
}
