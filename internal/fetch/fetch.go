// Package fetch retrieves hourly snapshots and wind series over HTTP and
// hands them to the reconstruction core as completed collections.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/balloon.report/internal/frames"
	"github.com/banshee-data/balloon.report/internal/httputil"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/wind"
)

// maxSnapshotBytes bounds a single hourly snapshot.
const maxSnapshotBytes = 16 << 20

// Fetcher downloads the hourly snapshots named "00.json" … "23.json" under
// BaseURL.
type Fetcher struct {
	Client  httputil.HTTPClient
	BaseURL string
}

// NewFetcher returns a Fetcher using a standard client with the default
// timeout.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{Client: httputil.NewStandardClient(nil), BaseURL: baseURL}
}

// FetchFrames requests every hour of the window concurrently and returns
// one result per hour, ordered by hour. Failures are reported in the
// result, never as an error.
func (f *Fetcher) FetchFrames(ctx context.Context) []frames.FetchResult {
	results := make([]frames.FetchResult, frames.WindowHours)
	var wg sync.WaitGroup
	for hour := 0; hour < frames.WindowHours; hour++ {
		wg.Add(1)
		go func(hour int) {
			defer wg.Done()
			results[hour] = f.fetchHour(ctx, hour)
		}(hour)
	}
	wg.Wait()
	return results
}

func (f *Fetcher) fetchHour(ctx context.Context, hour int) frames.FetchResult {
	res := frames.FetchResult{Hour: hour}
	u := fmt.Sprintf("%s/%02d.json", strings.TrimRight(f.BaseURL, "/"), hour)

	body, err := f.get(ctx, u)
	if err != nil {
		res.Error = err.Error()
		monitoring.Logf("fetch: hour %02d: %v", hour, err)
		return res
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		res.Error = fmt.Sprintf("corrupt snapshot: %v", err)
		monitoring.Logf("fetch: hour %02d: %s", hour, res.Error)
		return res
	}
	res.Success = true
	res.Data = data
	return res
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}

// WindSource resolves wind series through a session cache, falling back to
// an HTTP endpoint that answers with a wind.SeriesFile.
type WindSource struct {
	Client httputil.HTTPClient
	URL    string
	Cache  *wind.Cache
}

// Series returns the wind series for a location and pressure level.
func (s *WindSource) Series(ctx context.Context, lat, lon, pressureHpa float64) ([]wind.Sample, error) {
	key := wind.NewKey(lat, lon, pressureHpa)
	if s.Cache != nil {
		if series, ok := s.Cache.Get(key); ok {
			return series, nil
		}
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(key.Lat, 'f', 1, 64))
	q.Set("longitude", strconv.FormatFloat(key.Lon, 'f', 1, 64))
	q.Set("pressure", strconv.FormatFloat(pressureHpa, 'f', -1, 64))
	sep := "?"
	if strings.Contains(s.URL, "?") {
		sep = "&"
	}

	body, err := (&Fetcher{Client: s.Client}).get(ctx, s.URL+sep+q.Encode())
	if err != nil {
		return nil, err
	}
	series, err := wind.DecodeSeries(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Put(key, series)
	}
	return series, nil
}
