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

package history

import (
	"math"
	"time"
)

// archive is a round robin archive of rates. Slots are time-aligned
// starting at zero time, so that the timestamp of any slot can be
// computed from latest without being stored. Unknown slots are NaN.
type archive struct {
	pdp

	step time.Duration
	size int64
	// End of the most recent slot. Partial data of the next slot
	// lives in pdp.
	latest time.Time
	// Values above max are stored as max.
	max float64

	dps []float64
}

func newArchive(step time.Duration, size int, max float64) *archive {
	dps := make([]float64, size)
	for i := range dps {
		dps[i] = math.NaN()
	}
	return &archive{step: step, size: int64(size), max: max, dps: dps}
}

// begins returns the start of the archive assuming now is within it.
func (a *archive) begins(now time.Time) time.Time {
	start := now.Add(-a.step * time.Duration(a.size)).Truncate(a.step)
	if now.Equal(now.Truncate(a.step)) {
		start = start.Add(a.step)
	}
	return start
}

// update records value as the rate observed from periodBegin to
// periodEnd, completing every slot that ends within the period.
func (a *archive) update(periodBegin, periodEnd time.Time, value float64) {
	cur := a.begins(periodEnd)
	if periodBegin.After(cur) {
		cur = periodBegin
	}

	for cur.Before(periodEnd) {
		endOfSlot := cur.Truncate(a.step).Add(a.step)
		end := endOfSlot
		if end.After(periodEnd) {
			end = periodEnd
		}

		a.addValue(value, end.Sub(cur))
		if end.Equal(endOfSlot) {
			a.movePdpToDps(endOfSlot)
		}
		cur = end
	}
}

// movePdpToDps stores the pdp in the slot ending at endOfSlot. Slots
// skipped since latest become unknown.
func (a *archive) movePdpToDps(endOfSlot time.Time) {
	if !a.latest.IsZero() {
		gap := int64(endOfSlot.Sub(a.latest)/a.step) - 1
		if gap > a.size {
			gap = a.size
		}
		for i := int64(1); i <= gap; i++ {
			a.dps[slotIndex(a.latest.Add(time.Duration(i)*a.step), a.step, a.size)] = math.NaN()
		}
	}

	v := a.reset()
	if v > a.max {
		v = a.max
	}
	a.dps[slotIndex(endOfSlot, a.step, a.size)] = v
	a.latest = endOfSlot
}

// values returns the archive oldest first.
func (a *archive) values() []float64 {
	out := make([]float64, a.size)
	if a.latest.IsZero() {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i := int64(0); i < a.size; i++ {
		t := a.latest.Add(-time.Duration(a.size-1-i) * a.step)
		out[i] = a.dps[slotIndex(t, a.step, a.size)]
	}
	return out
}

// slotIndex returns the index of the slot ending at slotEnd. Slot
// numbers are aligned on the millisecond.
func slotIndex(slotEnd time.Time, step time.Duration, size int64) int64 {
	return ((slotEnd.UnixNano() / 1e6) / (step.Nanoseconds() / 1e6)) % size
}
