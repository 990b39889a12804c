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

// pdp is a primary data point: the time weighted mean of the rates
// observed during (a part of) a history slot.
//
// A rate of 1.0 seen for the first quarter of a slot and 3.0 for the
// remaining three quarters consolidates into 0.25*1 + 0.75*3 = 2.5.
// Parts of the slot for which no rate was seen do not count, a pdp
// with zero duration has no value.
type pdp struct {
	value    float64
	duration time.Duration
}

func (p *pdp) Value() float64 {
	if p.duration == 0 {
		return math.NaN()
	}
	return p.value
}

func (p *pdp) Duration() time.Duration { return p.duration }

// addValue adds a value using weighted mean.
func (p *pdp) addValue(val float64, dur time.Duration) {
	if math.IsNaN(val) || dur <= 0 {
		return
	}
	total := p.duration + dur
	p.value = p.value*float64(p.duration)/float64(total) + val*float64(dur)/float64(total)
	p.duration = total
}

// reset empties the pdp and returns its value before the reset.
func (p *pdp) reset() float64 {
	v := p.Value()
	p.value, p.duration = 0, 0
	return v
}
