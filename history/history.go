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

// Package history keeps bounded histories of attribute rates.
//
// Every history definition (e.g. one slot per second for a minute,
// one per minute for an hour) yields one Buffer per attribute that
// collects history. A Buffer holds a round robin archive for rx and
// one for tx, into which the rate is consolidated as a time weighted
// mean per slot.
package history

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noushi/bmon/attr"
)

// Type is the storage width of a history. Rates above the maximum of
// the width are stored as the maximum.
type Type int

const (
	Type8 Type = iota
	Type16
	Type32
	Type64
)

func (t Type) String() string {
	switch t {
	case Type8:
		return "8bit"
	case Type16:
		return "16bit"
	case Type32:
		return "32bit"
	}
	return "64bit"
}

// Max returns the largest value a history of this type can hold.
func (t Type) Max() float64 {
	switch t {
	case Type8:
		return math.MaxUint8
	case Type16:
		return math.MaxUint16
	case Type32:
		return math.MaxUint32
	}
	return math.MaxUint64
}

// ParseType parses "8bit", "16bit", "32bit" or "64bit".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "8bit":
		return Type8, nil
	case "16bit":
		return Type16, nil
	case "32bit":
		return Type32, nil
	case "64bit", "":
		return Type64, nil
	}
	return Type64, fmt.Errorf("invalid history type %q, must be (8|16|32|64)bit", s)
}

var ErrDuplicateDefinition = errors.New("duplicate history definition")

// Definition describes one history kept for every attribute.
type Definition struct {
	Name     string
	Interval time.Duration
	Size     int
	Type     Type
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("history definition without a name")
	}
	if d.Interval < time.Millisecond {
		return fmt.Errorf("history %q: interval must be at least 1ms, got %v", d.Name, d.Interval)
	}
	if d.Size <= 0 {
		return fmt.Errorf("history %q: size must be positive, got %d", d.Name, d.Size)
	}
	return nil
}

// Store is the set of history definitions. It starts history
// collection of attributes on behalf of the attribute engine.
type Store struct {
	defs     []*Definition
	variance float64
}

// NewStore returns an empty store. variance is the fraction of a slot
// by which an update may arrive early and still complete the slot.
func NewStore(variance float64) *Store {
	return &Store{variance: variance}
}

// Define adds a history definition.
func (s *Store) Define(d Definition) error {
	if err := d.validate(); err != nil {
		return err
	}
	for _, x := range s.defs {
		if x.Name == d.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateDefinition, d.Name)
		}
	}
	s.defs = append(s.defs, &d)
	return nil
}

// Definitions returns the definitions in the order they were added.
func (s *Store) Definitions() []*Definition { return s.defs }

// Attach returns one buffer per definition for a.
func (s *Store) Attach(a *attr.Attribute) []attr.HistoryBuffer {
	bufs := make([]attr.HistoryBuffer, 0, len(s.defs))
	for _, d := range s.defs {
		bufs = append(bufs, newBuffer(d, s.variance))
	}
	return bufs
}

// Buffers returns the history buffers of a.
func Buffers(a *attr.Attribute) []*Buffer {
	var list []*Buffer
	for _, h := range a.History() {
		if b, ok := h.(*Buffer); ok {
			list = append(list, b)
		}
	}
	return list
}

// Buffer is the history of one attribute according to one definition.
type Buffer struct {
	def      *Definition
	tol      time.Duration
	rx, tx   *archive
	lastSeen time.Time
}

func newBuffer(d *Definition, variance float64) *Buffer {
	return &Buffer{
		def: d,
		tol: time.Duration(variance * float64(d.Interval)),
		rx:  newArchive(d.Interval, d.Size, d.Type.Max()),
		tx:  newArchive(d.Interval, d.Size, d.Type.Max()),
	}
}

func (b *Buffer) Definition() *Definition { return b.def }

// Update consolidates the current rates of a into the archives. The
// rate is taken to have been constant since the previous update. An
// update within the variance tolerance of a slot boundary is moved to
// the boundary so that read jitter does not leave slots incomplete.
func (b *Buffer) Update(a *attr.Attribute, now time.Time) {
	if next := now.Truncate(b.def.Interval).Add(b.def.Interval); next.Sub(now) <= b.tol {
		now = next
	}
	if b.lastSeen.IsZero() {
		b.lastSeen = now
		return
	}
	if !now.After(b.lastSeen) {
		return
	}

	if a.Has(attr.FlagRxEnabled) {
		b.rx.update(b.lastSeen, now, a.Rx.Rate)
	} else {
		b.rx.update(b.lastSeen, now, math.NaN())
	}
	if a.Has(attr.FlagTxEnabled) {
		b.tx.update(b.lastSeen, now, a.Tx.Rate)
	} else {
		b.tx.update(b.lastSeen, now, math.NaN())
	}
	b.lastSeen = now
}

// Rx returns the rx history oldest first. Unknown slots are NaN.
func (b *Buffer) Rx() []float64 { return b.rx.values() }

// Tx returns the tx history oldest first.
func (b *Buffer) Tx() []float64 { return b.tx.values() }

// Latest returns the end of the most recent complete slot.
func (b *Buffer) Latest() time.Time { return b.rx.latest }
