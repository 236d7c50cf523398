package artifacts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/balloon.report/internal/geo"
	"github.com/banshee-data/balloon.report/internal/tracks"
)

func sampleResult() *tracks.Result {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	t := &tracks.Track{ID: "track-1"}
	for h := 3; h >= 0; h-- {
		t.Points = append(t.Points, tracks.TrackPoint{
			Position:  geo.Position{Latitude: 10, Longitude: float64(3 - h), AltitudeKm: 15},
			Timestamp: now.Add(-time.Duration(h) * time.Hour),
			Hour:      h,
		})
	}
	t.Finalize()
	return &tracks.Result{Tracks: []*tracks.Track{t}, UnmatchedHours: []int{}}
}

func TestReadFrames(t *testing.T) {
	fsys := NewMemoryFileSystem()
	fsys.WriteFile("in/frames.json", []byte(`{"results":[
		{"hour":0,"success":true,"data":[[1,2,3]]},
		{"hour":1,"success":false,"error":"timeout"}
	]}`))

	results, err := ReadFrames(fsys, "in/frames.json")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "timeout", results[1].Error)

	_, err = ReadFrames(fsys, "missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	fsys.WriteFile("bad.json", []byte(`{"results":`))
	_, err = ReadFrames(fsys, "bad.json")
	assert.ErrorContains(t, err, "bad.json")
}

func TestReadWind(t *testing.T) {
	fsys := NewMemoryFileSystem()
	fsys.WriteFile("wind.json", []byte(`{"samples":[{"latitude":1,"longitude":2,"pressure":250,"altitude":10.4,"speed":40,"direction":90,"timestamp":"2026-08-01T00:00:00Z"}]}`))

	series, err := ReadWind(fsys, "wind.json")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 40.0, series[0].SpeedKmh)
}

func TestReadInputTooLarge(t *testing.T) {
	fsys := NewMemoryFileSystem()
	fsys.WriteFile("huge.json", bytes.Repeat([]byte{' '}, MaxInputBytes+1))
	_, err := ReadFrames(fsys, "huge.json")
	assert.ErrorContains(t, err, "too large")
}

func TestStoreWritesArtifacts(t *testing.T) {
	fsys := NewMemoryFileSystem()
	store := NewStore(fsys, "out")
	res := sampleResult()

	jsonPath, err := store.WriteJSON("run.json", res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "run.json"), jsonPath)

	pngPath, err := store.WriteAltitudePlot("run-altitude.png", res)
	require.NoError(t, err)
	htmlPath, err := store.WriteTrackMap("run-map.html", res, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{pngPath, htmlPath, jsonPath}, fsys.Files())

	raw, err := fsys.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id": "track-1"`)

	png, err := fsys.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}))

	html, err := fsys.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "track-1"))
}

func TestStoreRejectsEscapingNames(t *testing.T) {
	store := NewStore(NewMemoryFileSystem(), "out")
	_, err := store.WriteJSON("../escape.json", sampleResult())
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.Path("nested/ok.json")
	assert.NoError(t, err)
}

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")))

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "tracks.json"), false},
		{"nested file that does not exist yet", filepath.Join(safeDir, "a", "b", "map.html"), false},
		{"dot-dot traversal", filepath.Join(safeDir, "..", "tracks.json"), true},
		{"absolute path elsewhere", filepath.Join(unsafeDir, "tracks.json"), true},
		{"through symlink", filepath.Join(safeDir, "evil-symlink", "tracks.json"), true},
		{"directory itself", safeDir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, safeDir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "tracks"},
		{"run 2026/05/01", "run_2026_05_01"},
		{"../../etc/passwd", "etc_passwd"},
		{"track-1.v2", "track-1.v2"},
		{"???", "tracks"},
		{"a!!b", "a_b"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeName(tc.in), "input %q", tc.in)
	}
}
