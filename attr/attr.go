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

// Package attr derives rates and totals from raw traffic counters.
//
// An acquisition backend reports raw rx/tx samples with Engine.Update,
// once per attribute per poll cycle, and then calls Engine.Notify for
// the element, which recalculates the rates and feeds the history.
// Attributes are kept per element in a Collection which provides
// lookup by id as well as a stable display order and a selection
// cursor.
//
// Nothing in this package is safe for concurrent use, the whole
// read-notify-draw cycle is expected to run on one goroutine.
package attr

import (
	"log"
	"time"

	"github.com/noushi/bmon/unit"
)

// Debug enables debug logging when > 0.
var Debug int

// Flag is the live state of an attribute.
type Flag uint8

const (
	FlagRxEnabled       Flag = 0x01 // has rx counter
	FlagTxEnabled       Flag = 0x02 // has tx counter
	FlagHistory         Flag = 0x04 // history collected
	FlagIgnoreOverflows Flag = 0x08 // ignore overflows
	FlagIsRate          Flag = 0x10 // value is a rate already
	FlagIs64Bit         Flag = 0x20 // 64bit counter
	FlagIsUsage         Flag = 0x40 // value is a usage already
	FlagSigned          Flag = 0x80 // signed value
)

// UpdateFlag tells Update which parts of a sample are present.
type UpdateFlag int

const (
	UpdateRx    UpdateFlag = 0x01
	UpdateTx    UpdateFlag = 0x02
	Update64Bit UpdateFlag = 0x04
)

// HistoryBuffer receives the freshly computed state of an attribute
// after every notification.
type HistoryBuffer interface {
	Update(a *Attribute, now time.Time)
}

// HistoryAttacher starts history tracking of an attribute and returns
// the buffers to be fed.
type HistoryAttacher interface {
	Attach(a *Attribute) []HistoryBuffer
}

// Attribute is a tracked metric of an element: a definition along
// with live rx and tx state.
type Attribute struct {
	Rx, Tx Rate

	def        *Definition
	flags      Flag
	lastUpdate time.Time
	history    []HistoryBuffer

	// position within the owning collection
	handle     handle
	prev, next handle
}

func (a *Attribute) Def() *Definition         { return a.def }
func (a *Attribute) ID() int                  { return a.def.id }
func (a *Attribute) Flags() Flag              { return a.flags }
func (a *Attribute) Has(f Flag) bool          { return a.flags&f != 0 }
func (a *Attribute) LastUpdate() time.Time    { return a.lastUpdate }
func (a *Attribute) History() []HistoryBuffer { return a.history }

// Engine applies raw samples to attribute collections and derives
// rates from them.
type Engine struct {
	defs    *Registry
	units   *unit.Table
	history HistoryAttacher
	cfg     Config
}

// NewEngine returns an Engine. history may be nil in which case
// attributes never collect history.
func NewEngine(cfg Config, defs *Registry, units *unit.Table, history HistoryAttacher) *Engine {
	return &Engine{defs: defs, units: units, history: history, cfg: cfg}
}

func (e *Engine) Config() Config         { return e.cfg }
func (e *Engine) Definitions() *Registry { return e.defs }
func (e *Engine) Units() *unit.Table     { return e.units }

var timeNow = func() time.Time {
	return time.Now()
}

// Update stores a raw sample. The attribute is created on first use.
// Ids without a registered definition are ignored.
func (e *Engine) Update(c *Collection, id int, rx, tx uint64, flags UpdateFlag) {
	a := c.Lookup(id)
	if a == nil {
		def := e.defs.LookupID(id)
		if def == nil {
			return
		}

		a = &Attribute{def: def, flags: def.attrFlags()}
		if e.collectHistory(c, def) {
			e.attachHistory(a)
		}
		c.insert(a)

		if Debug > 1 {
			log.Printf("[DBG] New attribute %s of element %s", def.name, c.name)
		}
	}

	// Without a declared width the counter width follows each sample.
	if flags&(UpdateRx|UpdateTx) != 0 && !a.def.Has(DefIs64Bit) {
		a.flags &^= FlagIs64Bit
	}
	if flags&Update64Bit != 0 {
		a.flags |= FlagIs64Bit
	}

	updated := false
	if flags&UpdateRx != 0 {
		a.Rx.Current = rx
		a.flags |= FlagRxEnabled
		updated = true
	}
	if flags&UpdateTx != 0 {
		a.Tx.Current = tx
		a.flags |= FlagTxEnabled
		updated = true
	}
	if updated {
		a.lastUpdate = timeNow()
	}
}

// Notify recalculates the rates of a single attribute and feeds its
// history buffers.
func (e *Engine) Notify(a *Attribute, now time.Time) {
	switch a.def.typ {
	case TypeRate, TypePercent:
		calcRateTotal(&a.Rx, now)
		calcRateTotal(&a.Tx, now)
	case TypeCounter:
		calcCounterRate(e.cfg, a.flags, &a.Rx, now)
		calcCounterRate(e.cfg, a.flags, &a.Tx, now)
	}

	if a.flags&FlagHistory != 0 {
		for _, h := range a.history {
			h.Update(a, now)
		}
	}
}

// NotifyAll notifies every attribute of a collection.
func (e *Engine) NotifyAll(c *Collection, now time.Time) {
	c.Each(func(a *Attribute) {
		e.Notify(a, now)
	})
}

// CalcUsage returns the rx and tx usage in percent of the given
// capacities (0 meaning unbounded).
func (e *Engine) CalcUsage(a *Attribute, rxMax, txMax uint64) (rx, tx float64) {
	if a.def.typ == TypePercent {
		return float64(a.Rx.Total), float64(a.Tx.Total)
	}
	return calcUsage(e.cfg, a.Rx.Rate, rxMax), calcUsage(e.cfg, a.Tx.Rate, txMax)
}

// Scaled is a value ready for display.
type Scaled struct {
	Value     float64
	Unit      string
	Precision int
}

// Rate2Float returns the rx and tx rates scaled by the attribute's
// unit.
func (e *Engine) Rate2Float(a *Attribute) (rx, tx Scaled) {
	u := a.def.unit
	rx.Value, rx.Unit, rx.Precision = e.units.Value(uint64(a.Rx.Rate), u)
	tx.Value, tx.Unit, tx.Precision = e.units.Value(uint64(a.Tx.Rate), u)
	return rx, tx
}

// Total2Float returns the rx and tx totals scaled by the attribute's
// unit.
func (e *Engine) Total2Float(a *Attribute) (rx, tx Scaled) {
	u := a.def.unit
	rx.Value, rx.Unit, rx.Precision = e.units.Value(a.Rx.Total, u)
	tx.Value, tx.Unit, tx.Precision = e.units.Value(a.Tx.Total, u)
	return rx, tx
}

// collectHistory decides whether an attribute of the given definition
// keeps history: either the definition asks for it or it is one of the
// collection's key attributes.
func (e *Engine) collectHistory(c *Collection, def *Definition) bool {
	if def.Has(DefHistory) {
		return true
	}
	for _, k := range c.keys {
		if k == def {
			return true
		}
	}
	return false
}

// attachHistory starts history collection of an attribute. It is a
// no-op if history is already active.
func (e *Engine) attachHistory(a *Attribute) {
	if a.flags&FlagHistory != 0 {
		return
	}
	if e.history != nil {
		a.history = append(a.history, e.history.Attach(a)...)
	}
	a.flags |= FlagHistory
}

// CollectHistory makes an existing attribute collect history.
func (e *Engine) CollectHistory(a *Attribute) { e.attachHistory(a) }
