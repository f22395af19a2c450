// Package decision implements the Weather Decision Engine: the
// "should_water" verdict derived from past and forecast precipitation.
package decision

import (
	"fmt"
	"time"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"
)

const (
	pastWindow = 12 * time.Hour
	nextWindow = 12 * time.Hour

	// minForecastRows below this, there isn't enough forecast data to
	// trust a "skip" verdict, so watering proceeds regardless of
	// past/next rainfall sums.
	minForecastRows = 6

	// rainThresholdInch is the default 12-hour rainfall cutoff, always
	// converted into the store's configured precipitation unit before
	// comparison.
	rainThresholdInch = 0.02

	// rowFetchMargin over-fetches beyond the expected hourly row count
	// within a 12h window so a coarser-than-hourly provider response
	// still yields every row actually in range.
	rowFetchMargin = 4
)

// Store is the subset of the Measurement Store the decision engine
// queries.
type Store interface {
	GetWeather(from time.Time, count int) ([]model.WeatherRecord, error)
}

// Verdict is the outcome of ShouldWater plus the figures that produced
// it, useful for logging and tests.
type Verdict struct {
	ShouldWater bool
	Reason      string
	PastRain    float64
	NextRain    float64
	NextProb    float64
	Threshold   float64
	ForecastRows int
}

// ShouldWater computes the watering verdict at now: watering proceeds
// unless 12h-past rainfall already exceeds the threshold, or a
// sufficiently likely and sufficiently large rain event is forecast in
// the next 12h. precipUnit is the unit precipitation values are stored
// in (Millimeter or Inch); probThreshold is the configured rain-cancel
// probability (0..1).
func ShouldWater(now time.Time, store Store, precipUnit units.Unit, probThreshold float64) (Verdict, error) {
	threshold, ok := units.Convert(rainThresholdInch, units.Inch, precipUnit)
	if !ok {
		return Verdict{}, fmt.Errorf("decision: cannot convert rain threshold into unit %s", precipUnit)
	}

	pastRows, err := pastForecastRows(store, now)
	if err != nil {
		return Verdict{}, fmt.Errorf("decision: fetching past rows: %w", err)
	}
	nextRows, err := nextForecastRows(store, now)
	if err != nil {
		return Verdict{}, fmt.Errorf("decision: fetching next rows: %w", err)
	}

	var pastRain, nextRain, nextProb float64
	for _, r := range pastRows {
		pastRain += r.PrecipitationAmount
	}
	for _, r := range nextRows {
		nextRain += r.PrecipitationAmount
		if *r.PrecipitationProbability > nextProb {
			nextProb = *r.PrecipitationProbability
		}
	}

	verdict := Verdict{
		PastRain: pastRain, NextRain: nextRain, NextProb: nextProb,
		Threshold: threshold, ForecastRows: len(nextRows),
	}

	if len(nextRows) == 0 {
		verdict.ShouldWater = true
		verdict.Reason = "no forecast rows available, defaulting to water"
		log.Warnf("decision: %s", verdict.Reason)
		return verdict, nil
	}
	if len(nextRows) < minForecastRows {
		verdict.ShouldWater = true
		verdict.Reason = fmt.Sprintf("insufficient forecast data (%d rows < %d), defaulting to water", len(nextRows), minForecastRows)
		log.Warnf("decision: %s", verdict.Reason)
		return verdict, nil
	}

	rainAlready := pastRain > threshold
	rainComing := nextProb > probThreshold && nextRain > threshold
	verdict.ShouldWater = !rainAlready && !rainComing

	switch {
	case rainAlready:
		verdict.Reason = fmt.Sprintf("past 12h rainfall %.3f exceeds threshold %.3f", pastRain, threshold)
	case rainComing:
		verdict.Reason = fmt.Sprintf("forecast rain probability %.0f%% with %.3f expected exceeds threshold", nextProb*100, nextRain)
	default:
		verdict.Reason = "no disqualifying rainfall signal"
	}

	return verdict, nil
}

func pastForecastRows(store Store, now time.Time) ([]model.WeatherRecord, error) {
	windowStart := now.Add(-pastWindow)
	rows, err := store.GetWeather(now, -(int(pastWindow.Hours())+rowFetchMargin))
	if err != nil {
		return nil, err
	}
	return filterForecastRows(rows, windowStart, now), nil
}

func nextForecastRows(store Store, now time.Time) ([]model.WeatherRecord, error) {
	windowEnd := now.Add(nextWindow)
	rows, err := store.GetWeather(now, int(nextWindow.Hours())+rowFetchMargin)
	if err != nil {
		return nil, err
	}
	return filterForecastRows(rows, now, windowEnd), nil
}

func filterForecastRows(rows []model.WeatherRecord, from, to time.Time) []model.WeatherRecord {
	out := make([]model.WeatherRecord, 0, len(rows))
	for _, r := range rows {
		if !r.IsForecast() {
			continue
		}
		if r.ForecastTS.Before(from) || r.ForecastTS.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}
