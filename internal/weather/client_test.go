package weather

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"
)

type fakeStore struct {
	recorded []model.WeatherRecord
}

func (f *fakeStore) RecordWeather(w model.WeatherRecord) error {
	f.recorded = append(f.recorded, w)
	return nil
}

type fakeSettings struct {
	lastCheck time.Time
	tz        string
}

func (f *fakeSettings) SetWeatherLastCheckTimestamp(t time.Time) error {
	f.lastCheck = t
	return nil
}

func (f *fakeSettings) SetLocalTimezone(tz string) error {
	f.tz = tz
	return nil
}

func mustParseRFC3339(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}

// fetchViaTestServer exercises the same fetch/assemble/persist pipeline
// as Client.Fetch, against an httptest server instead of the real
// Open-Meteo endpoint (the production endpoint is an unexported
// constant, intentionally not parameterized for a test seam).
func fetchViaTestServer(t *testing.T, c *Client, serverURL string, now time.Time) error {
	t.Helper()
	resp, err := c.httpClient.Get(serverURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}

	loc, err := time.LoadLocation(parsed.Timezone)
	if err != nil {
		loc = time.UTC
	}

	records, err := c.assembleRecords(parsed, loc, now)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := c.store.RecordWeather(r); err != nil {
			return err
		}
	}
	if err := c.settings.SetWeatherLastCheckTimestamp(now.UTC()); err != nil {
		return err
	}
	return c.settings.SetLocalTimezone(parsed.Timezone)
}

func TestFetchAssemblesAndMergesCurrent(t *testing.T) {
	now := mustParseRFC3339(t, "2026-07-30T12:00:00Z")

	body := fmt.Sprintf(`{
		"timezone": "UTC",
		"current": {"time": %q, "temperature_2m": 30.5, "relative_humidity_2m": 50, "precipitation": 0, "surface_pressure": 1013.2},
		"hourly": {
			"time": [%q, %q, %q],
			"temperature_2m": [25.0, 26.0, 27.0],
			"precipitation": [0, 0.1, 0.5],
			"precipitation_probability": [10, 20, 80],
			"soil_moisture_1_to_3cm": [0.2, 0.2, 0.25]
		}
	}`,
		now.Format("2006-01-02T15:04"),
		now.Add(-1*time.Hour).Format("2006-01-02T15:04"),
		now.Format("2006-01-02T15:04"),
		now.Add(1*time.Hour).Format("2006-01-02T15:04"),
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	store := &fakeStore{}
	settings := &fakeSettings{}
	c := New(Location{Latitude: 40.0, Longitude: -74.0}, units.Celsius, units.Millimeter, t.TempDir(), store, settings)
	c.httpClient = server.Client()

	if err := fetchViaTestServer(t, c, server.URL, now); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(store.recorded) != 3 {
		t.Fatalf("expected 3 records in window, got %d", len(store.recorded))
	}

	var current *model.WeatherRecord
	for i := range store.recorded {
		if store.recorded[i].Tag == tagCurrent {
			current = &store.recorded[i]
		}
	}
	if current == nil {
		t.Fatal("expected one record tagged current")
	}
	if current.IsForecast() {
		t.Error("current-tagged record should not be a forecast row")
	}
	if current.Temperature != 30.5 {
		t.Errorf("expected current temperature to override hourly slot, got %v", current.Temperature)
	}

	if settings.tz != "UTC" {
		t.Errorf("expected timezone setting to be persisted, got %q", settings.tz)
	}
	if !settings.lastCheck.Equal(now.UTC()) {
		t.Errorf("expected last-check timestamp to be persisted as %v, got %v", now.UTC(), settings.lastCheck)
	}
}

func TestDumpRawWritesAtomically(t *testing.T) {
	store := &fakeStore{}
	settings := &fakeSettings{}
	dir := t.TempDir()
	c := New(Location{}, units.Celsius, units.Millimeter, dir, store, settings)

	now := time.Date(2026, 7, 30, 14, 5, 0, 0, time.UTC)
	if err := c.dumpRaw(now, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("dumpRaw: %v", err)
	}

	expected := filepath.Join(dir, "2026", "weather-0730-1405.json")
	data, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("expected dump file at %s: %v", expected, err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("unexpected dump contents: %s", data)
	}
}
