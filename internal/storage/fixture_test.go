package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/db"
	"github.com/dokzlo13/dimmerd/internal/light"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "dimmerd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func sampleState() light.State {
	s := light.DefaultState()
	s.On = true
	s.Power = 70
	s.PresetIdx = 1
	return s
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected light.State
		wantErr  bool
	}{
		{
			name:  "full_document",
			input: `{"on":true,"power":40,"presetIdx":2,"presets":[{"red":1,"green":2,"blue":3,"white":4},{"red":0,"green":0,"blue":0,"white":100},{"red":100,"green":0,"blue":0,"white":0}]}`,
			expected: light.State{
				On: true, Power: 40, PresetIdx: 2,
				Presets: [light.PresetCount]light.Colour{
					{Red: 1, Green: 2, Blue: 3, White: 4},
					{White: 100},
					{Red: 100},
				},
			},
		},
		{
			name:  "pads_missing_presets",
			input: `{"on":false,"power":100,"presetIdx":0,"presets":[{"red":0,"green":0,"blue":0,"white":100}]}`,
			expected: light.State{
				Power:   100,
				Presets: [light.PresetCount]light.Colour{{White: 100}},
			},
		},
		{name: "too_many_presets", input: `{"on":false,"power":100,"presetIdx":0,"presets":[{},{},{},{}]}`, wantErr: true},
		{name: "preset_idx_out_of_range", input: `{"on":false,"power":100,"presetIdx":3,"presets":[]}`, wantErr: true},
		{name: "negative_preset_idx", input: `{"on":false,"power":100,"presetIdx":-1,"presets":[]}`, wantErr: true},
		{name: "power_above_range", input: `{"on":true,"power":101,"presetIdx":0,"presets":[]}`, wantErr: true},
		{name: "channel_above_range", input: `{"on":true,"power":10,"presetIdx":0,"presets":[{"red":150}]}`, wantErr: true},
		{name: "missing_power", input: `{"on":true,"presetIdx":0,"presets":[]}`, wantErr: true},
		{name: "not_json", input: `on=true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrMalformedState), "expected ErrMalformedState, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEncode_StoresPreAuroraColour(t *testing.T) {
	s := sampleState()
	s.SetActive(light.Colour{Red: 3, Green: 77})
	s.Aurora = &light.AuroraSettings{
		StoredColour: light.Colour{Red: 100, Green: 60, White: 40},
		MaxColour:    light.Colour{Red: 100, Green: 100},
	}

	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, got.Aurora)
	assert.Equal(t, light.Colour{Red: 100, Green: 60, White: 40}, got.Active())
	assert.Equal(t, light.Colour{Red: 3, Green: 77}, s.Active(), "encoding must not mutate the input")
}

func TestEncode_Schema(t *testing.T) {
	data, err := Encode(light.DefaultState())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"on": false,
		"power": 100,
		"presetIdx": 0,
		"presets": [
			{"red": 0, "green": 0, "blue": 0, "white": 100},
			{"red": 100, "green": 60, "blue": 0, "white": 40},
			{"red": 20, "green": 40, "blue": 100, "white": 0}
		]
	}`, string(data))
}

func TestSQLiteStateStore_RoundTrip(t *testing.T) {
	database := openTestDB(t)
	store := NewSQLiteStateStore(NewStore(database.DB))

	_, err := store.Load()
	assert.True(t, eris.Is(err, ErrStateNotFound))

	want := sampleState()
	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Power = 20
	require.NoError(t, store.Save(want))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, 20, got.Power)
}

func TestStore_Versioning(t *testing.T) {
	database := openTestDB(t)
	store := NewStore(database.DB)

	payload, version, err := store.Get("fixture", "state")
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, int64(0), version)

	require.NoError(t, store.Set("fixture", "state", []byte(`{"a":1}`)))
	require.NoError(t, store.Set("fixture", "state", []byte(`{"a":2}`)))

	payload, version, err = store.Get("fixture", "state")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(payload))
	assert.Equal(t, int64(2), version)

	require.NoError(t, store.Delete("fixture", "state"))
	payload, _, err = store.Get("fixture", "state")
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, store.Set("fixture", "a", []byte(`{}`)))
	require.NoError(t, store.Set("other", "b", []byte(`{}`)))
	require.NoError(t, store.Clear("fixture"))
	payload, _, _ = store.Get("fixture", "a")
	assert.Nil(t, payload)
	payload, _, _ = store.Get("other", "b")
	assert.NotNil(t, payload)
}

func TestSQLiteStateStore_DatabaseErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := NewSQLiteStateStore(NewStore(sqlDB))

	mock.ExpectQuery("SELECT payload, version FROM resource_state").
		WithArgs("fixture", "state").
		WillReturnError(eris.New("disk I/O error"))
	_, err = store.Load()
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrStateNotFound))

	mock.ExpectExec("INSERT INTO resource_state").
		WillReturnError(eris.New("database is locked"))
	require.Error(t, store.Save(sampleState()))

	mock.ExpectQuery("SELECT payload, version FROM resource_state").
		WithArgs("fixture", "state").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "version"}).AddRow(`{"on":true}`, 3))
	_, err = store.Load()
	assert.True(t, eris.Is(err, ErrMalformedState))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStateStore(path)

	_, err := store.Load()
	assert.True(t, eris.Is(err, ErrStateNotFound))

	want := sampleState()
	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, os.WriteFile(path, []byte(`{"on":true,"power":500,"presetIdx":0,"presets":[]}`), 0o644))
	_, err = store.Load()
	assert.True(t, eris.Is(err, ErrMalformedState))
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("creates_default", func(t *testing.T) {
		store := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
		got, err := LoadOrDefault(store, true)
		require.NoError(t, err)
		assert.Equal(t, light.DefaultState(), got)

		persisted, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, light.DefaultState(), persisted)
	})

	t.Run("missing_without_create", func(t *testing.T) {
		store := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
		_, err := LoadOrDefault(store, false)
		assert.True(t, eris.Is(err, ErrStateNotFound))
	})

	t.Run("malformed_is_fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte(`{]`), 0o644))
		_, err := LoadOrDefault(NewFileStateStore(path), true)
		assert.True(t, eris.Is(err, ErrMalformedState))
	})

	t.Run("existing_state", func(t *testing.T) {
		store := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
		require.NoError(t, store.Save(sampleState()))
		got, err := LoadOrDefault(store, true)
		require.NoError(t, err)
		assert.Equal(t, sampleState(), got)
	})
}
