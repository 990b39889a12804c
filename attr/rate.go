//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package attr

import (
	"math"
	"time"
)

const (
	max32 = uint64(math.MaxUint32)
	max64 = uint64(math.MaxUint64)
)

// Rate is the running state of one direction (rx or tx) of an
// attribute.
type Rate struct {
	// Total value of the attribute with overflows accumulated. Never
	// decreases.
	Total uint64
	// Current value of the counter, as last reported.
	Current uint64
	// Value of Current at the previous calculation.
	Prev uint64
	// Smoothed rate per second, recalculated every rate interval.
	Rate float64
	// Time of the last calculation.
	LastCalc time.Time
}

// Config holds the rate estimation settings.
type Config struct {
	// RateInterval is how often rates are recalculated.
	RateInterval time.Duration
	// Variance is the fraction of RateInterval by which a
	// recalculation may happen early.
	Variance float64
}

// DefaultConfig matches the defaults of the config file.
var DefaultConfig = Config{RateInterval: time.Second, Variance: 0.1}

func (c Config) interval() float64 { return c.RateInterval.Seconds() }

func (c Config) tolerance() float64 { return c.Variance * c.RateInterval.Seconds() }

// wrapDelta returns the increase from prev to current, assuming a
// counter that wraps past max back to zero at most once. A prev wider
// than max (a counter misreported as 32bit) falls back to 64bit.
func wrapDelta(current, prev, max uint64) uint64 {
	if current >= prev {
		return current - prev
	}
	if prev > max {
		max = max64
	}
	return (max - prev) + current + 1
}

// counterDelta computes the delta of a raw counter sample according
// to the attribute flags.
func counterDelta(flags Flag, current, prev uint64) uint64 {
	if current < prev && flags&FlagIgnoreOverflows != 0 {
		return current
	}
	if flags&FlagIs64Bit != 0 {
		return wrapDelta(current, prev, max64)
	}
	return wrapDelta(current, prev, max32)
}

// smooth weighs the newest sample at 3/4.
func smooth(instant, previous float64) float64 {
	return (3*instant + previous) / 4
}

// calcCounterRate accumulates the raw counter into the total and, at
// most once per rate interval, recalculates the smoothed rate. The
// first sample only establishes the baseline.
func calcCounterRate(cfg Config, flags Flag, r *Rate, now time.Time) {
	delta := counterDelta(flags, r.Current, r.Prev)

	prevTotal := r.Total
	r.Total += delta
	r.Prev = r.Current

	if prevTotal == 0 {
		// No previous records, reset time to now. This continues as
		// long as the counter stays 0.
		r.LastCalc = now
		return
	}

	elapsed := now.Sub(r.LastCalc).Seconds()
	if elapsed < cfg.interval()-cfg.tolerance() || elapsed <= 0 {
		return
	}

	// Totals are 64bit regardless of the counter width.
	totalDelta := wrapDelta(r.Total, prevTotal, max64)

	oldRate := r.Rate
	r.Rate = float64(totalDelta) / elapsed
	if oldRate != 0 {
		r.Rate = smooth(r.Rate, oldRate)
	}
	r.LastCalc = now
}

// calcRateTotal is used for attributes whose samples already are rates
// or percentages.
func calcRateTotal(r *Rate, now time.Time) {
	r.Prev = r.Current
	r.Total = r.Current
	r.Rate = float64(r.Current)
	r.LastCalc = now
}

// calcUsage returns the usage of max in percent given a rate.
// Unbounded capacity (max 0) yields math.MaxFloat64.
func calcUsage(cfg Config, rate float64, max uint64) float64 {
	if max == 0 {
		return math.MaxFloat64
	}
	if rate == 0 {
		return 0
	}
	return 100 / (float64(max) / (rate * cfg.interval()))
}
