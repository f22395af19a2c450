// Package weather fetches forecast and current-conditions data from the
// Open-Meteo forecast API and normalizes it into model.WeatherRecord rows.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"
)

const forecastEndpoint = "https://api.open-meteo.com/v1/forecast"

// requestTimeout bounds one fetch attempt; the app's weather worker
// simply logs and retries on its next tick if this is exceeded.
const requestTimeout = 20 * time.Second

// Store is the subset of the Measurement Store the weather client writes
// through; kept narrow so this package does not import internal/store
// directly.
type Store interface {
	RecordWeather(model.WeatherRecord) error
}

// SettingsUpdater is the narrow persistence hook the weather client uses
// to record its last successful check and to reconcile the configured
// local timezone against the provider's response, without importing the
// config package directly.
type SettingsUpdater interface {
	SetWeatherLastCheckTimestamp(time.Time) error
	SetLocalTimezone(tz string) error
}

// Location is the configured garden location fed into every request.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Client fetches and persists weather data on its own cadence. It is
// constructed once per process and its http.Client is reused across
// ticks, mirroring the teacher's controller field pattern.
type Client struct {
	httpClient   *http.Client
	location     Location
	tempUnit     units.Unit
	precipUnit   units.Unit
	dataDir      string
	store        Store
	settings     SettingsUpdater
}

// New builds a Client targeting loc, persisting through store, and
// updating settings through updater. tempUnit must be Celsius or
// Fahrenheit; precipUnit must be Millimeter or Inch.
func New(loc Location, tempUnit, precipUnit units.Unit, dataDir string, store Store, updater SettingsUpdater) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		location:   loc,
		tempUnit:   tempUnit,
		precipUnit: precipUnit,
		dataDir:    dataDir,
		store:      store,
		settings:   updater,
	}
}

// response mirrors the subset of the Open-Meteo forecast JSON this client
// consumes.
type response struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time            string  `json:"time"`
		Temperature2m   float64 `json:"temperature_2m"`
		RelativeHumidity2m float64 `json:"relative_humidity_2m"`
		Precipitation   float64 `json:"precipitation"`
		SurfacePressure float64 `json:"surface_pressure"`
	} `json:"current"`
	Hourly struct {
		Time                       []string  `json:"time"`
		Temperature2m              []float64 `json:"temperature_2m"`
		Precipitation              []float64 `json:"precipitation"`
		PrecipitationProbability   []float64 `json:"precipitation_probability"`
		SoilMoisture1To3cm         []float64 `json:"soil_moisture_1_to_3cm"`
	} `json:"hourly"`
}

// Fetch requests the current forecast window, dumps the raw response,
// assembles WeatherRecords for [now-24h, now+24h], merges the current
// conditions into the matching hourly slot, upserts them into the store,
// and updates the WEATHER_LAST_CHECK_TIMESTAMP / LOCAL_TIMEZONE settings.
// On failure it returns the error (a failed HTTP request is also logged
// here); the caller's last
// successful window remains usable and the next tick retries.
func (c *Client) Fetch(ctx context.Context, now time.Time) error {
	body, err := c.fetchRaw(ctx)
	if err != nil {
		log.Errorf("weather: fetch failed: %v", err)
		return err
	}

	if err := c.dumpRaw(now, body); err != nil {
		log.Warnf("weather: could not persist raw response: %v", err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("weather: decoding response: %w", err)
	}

	loc, err := time.LoadLocation(resp.Timezone)
	if err != nil {
		log.Warnf("weather: unknown timezone %q from provider, using UTC: %v", resp.Timezone, err)
		loc = time.UTC
	}

	records, err := c.assembleRecords(resp, loc, now)
	if err != nil {
		return err
	}

	for _, r := range records {
		if err := c.store.RecordWeather(r); err != nil {
			log.Errorf("weather: recording forecast_ts=%s: %v", r.ForecastTS, err)
		}
	}

	if err := c.settings.SetWeatherLastCheckTimestamp(now.UTC()); err != nil {
		log.Warnf("weather: could not persist last-check timestamp: %v", err)
	}
	if err := c.settings.SetLocalTimezone(resp.Timezone); err != nil {
		log.Warnf("weather: could not persist resolved timezone: %v", err)
	}

	return nil
}

func (c *Client) fetchRaw(ctx context.Context) ([]byte, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.location.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.location.Longitude, 'f', -1, 64))
	q.Set("hourly", "precipitation_probability,temperature_2m,precipitation,soil_moisture_1_to_3cm")
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,surface_pressure")
	q.Set("forecast_days", "3")
	q.Set("past_days", "1")
	q.Set("temperature_unit", temperatureUnitParam(c.tempUnit))
	q.Set("precipitation_unit", precipitationUnitParam(c.precipUnit))
	q.Set("timezone", "auto")

	reqURL := forecastEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("weather: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: provider returned status %d", resp.StatusCode)
	}
	return buf, nil
}

func temperatureUnitParam(u units.Unit) string {
	if u == units.Fahrenheit {
		return "fahrenheit"
	}
	return "celsius"
}

func precipitationUnitParam(u units.Unit) string {
	if u == units.Inch {
		return "inch"
	}
	return "mm"
}

// dumpRaw writes the raw JSON response under
// data/<year>/weather-MMDD-HHMM.json using a write-temp-then-rename
// atomic replace, matching the teacher's log-rotation-adjacent write
// discipline.
func (c *Client) dumpRaw(now time.Time, body []byte) error {
	dir := filepath.Join(c.dataDir, strconv.Itoa(now.Year()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("weather: creating dump directory: %w", err)
	}
	finalPath := filepath.Join(dir, now.Format("weather-0102-1504")+".json")

	tmp, err := os.CreateTemp(dir, "weather-*.json.tmp")
	if err != nil {
		return fmt.Errorf("weather: creating temp dump file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("weather: writing temp dump file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("weather: closing temp dump file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("weather: renaming temp dump file: %w", err)
	}
	return nil
}
