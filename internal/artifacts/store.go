package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/balloon.report/internal/diagnostics"
	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/nowcast"
	"github.com/banshee-data/balloon.report/internal/tracks"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// MaxInputBytes bounds the size of frame and wind input files.
const MaxInputBytes = 16 << 20

// FramesFile is the on-disk form of one set of hourly fetch outcomes.
type FramesFile struct {
	Results []frames.FetchResult `json:"results"`
}

// ReadFrames loads fetch outcomes from a FramesFile.
func ReadFrames(fsys FileSystem, path string) ([]frames.FetchResult, error) {
	data, err := readInput(fsys, path)
	if err != nil {
		return nil, err
	}
	var f FramesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse frames file %s: %w", path, err)
	}
	return f.Results, nil
}

// ReadWind loads a wind series from a wind.SeriesFile.
func ReadWind(fsys FileSystem, path string) ([]wind.Sample, error) {
	data, err := readInput(fsys, path)
	if err != nil {
		return nil, err
	}
	series, err := wind.DecodeSeries(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

func readInput(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("input file too large: %d bytes (max %d)", len(data), MaxInputBytes)
	}
	return data, nil
}

// Store writes run outputs under Dir. Every name is checked to stay
// inside Dir before anything is created.
type Store struct {
	FS  FileSystem
	Dir string
}

func NewStore(fsys FileSystem, dir string) *Store {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	if dir == "" {
		dir = "."
	}
	return &Store{FS: fsys, Dir: dir}
}

// Path returns the location of name under Dir.
func (s *Store) Path(name string) (string, error) {
	p := filepath.Join(s.Dir, name)
	if err := ValidatePathWithinDirectory(p, s.Dir); err != nil {
		return "", err
	}
	return p, nil
}

// WriteJSON writes v as indented JSON and returns the path written.
func (s *Store) WriteJSON(name string, v any) (string, error) {
	return s.write(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteAltitudePlot renders the altitude profile of res as PNG.
func (s *Store) WriteAltitudePlot(name string, res *tracks.Result) (string, error) {
	return s.write(name, func(w io.Writer) error {
		return diagnostics.WriteAltitudePlot(res, w)
	})
}

// WriteTrackMap renders the interactive track map of res as HTML.
func (s *Store) WriteTrackMap(name string, res *tracks.Result, predictions []*nowcast.Prediction) (string, error) {
	return s.write(name, func(w io.Writer) error {
		return diagnostics.RenderTrackMap(w, res, predictions)
	})
}

func (s *Store) write(name string, render func(io.Writer) error) (string, error) {
	p, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := s.FS.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// A failed render creates no file.
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}

	f, err := s.FS.Create(p)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", p, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", p, err)
	}
	return p, nil
}
