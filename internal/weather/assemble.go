package weather

import (
	"fmt"
	"time"

	"github.com/danluca/waterly/internal/model"
)

const (
	hourlyTimeLayout = "2006-01-02T15:04"
	tagForecast      = "forecast"
	tagCurrent       = "current"
)

// assembleRecords builds one WeatherRecord per hourly slot within
// [now-24h, now+24h], localized to loc, merging the current-conditions
// reading into whichever hourly slot shares its timestamp.
func (c *Client) assembleRecords(resp response, loc *time.Location, now time.Time) ([]model.WeatherRecord, error) {
	windowStart := now.Add(-24 * time.Hour)
	windowEnd := now.Add(24 * time.Hour)

	currentTS, hasCurrent := time.Time{}, false
	if resp.Current.Time != "" {
		ts, err := time.ParseInLocation(hourlyTimeLayout, resp.Current.Time, loc)
		if err != nil {
			return nil, fmt.Errorf("weather: parsing current.time %q: %w", resp.Current.Time, err)
		}
		currentTS, hasCurrent = ts, true
	}

	n := len(resp.Hourly.Time)
	records := make([]model.WeatherRecord, 0, n)
	for i := 0; i < n; i++ {
		ts, err := time.ParseInLocation(hourlyTimeLayout, resp.Hourly.Time[i], loc)
		if err != nil {
			return nil, fmt.Errorf("weather: parsing hourly.time[%d] %q: %w", i, resp.Hourly.Time[i], err)
		}
		if ts.Before(windowStart) || ts.After(windowEnd) {
			continue
		}

		prob := valueAt(resp.Hourly.PrecipitationProbability, i) / 100.0
		record := model.WeatherRecord{
			CollectedAtUTC:           now.UTC(),
			ForecastTS:               ts,
			Tag:                      tagForecast,
			Temperature:              valueAt(resp.Hourly.Temperature2m, i),
			PrecipitationAmount:      valueAt(resp.Hourly.Precipitation, i),
			PrecipitationProbability: &prob,
			SoilMoisture:             valueAt(resp.Hourly.SoilMoisture1To3cm, i),
		}

		if hasCurrent && ts.Equal(currentTS) {
			record.Tag = tagCurrent
			record.Temperature = resp.Current.Temperature2m
			record.PrecipitationAmount = resp.Current.Precipitation
			record.PrecipitationProbability = nil
			pressure := resp.Current.SurfacePressure
			record.SurfacePressure = &pressure
		}

		records = append(records, record)
	}

	return records, nil
}

func valueAt(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}
