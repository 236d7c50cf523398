package wind

import (
	"encoding/json"
	"fmt"
	"io"
)

// SeriesFile is the JSON envelope for a wind series.
type SeriesFile struct {
	Samples []Sample `json:"samples"`
}

// DecodeSeries reads a SeriesFile from r.
func DecodeSeries(r io.Reader) ([]Sample, error) {
	var f SeriesFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode wind series: %w", err)
	}
	if f.Samples == nil {
		f.Samples = []Sample{}
	}
	return f.Samples, nil
}
