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
	"errors"
	"math"
	"testing"
	"time"

	"github.com/noushi/bmon/unit"
)

type fakeBuffer struct {
	updates []time.Time
}

func (b *fakeBuffer) Update(a *Attribute, now time.Time) { b.updates = append(b.updates, now) }

type fakeAttacher struct {
	attached map[string]*fakeBuffer
}

func (f *fakeAttacher) Attach(a *Attribute) []HistoryBuffer {
	if f.attached == nil {
		f.attached = make(map[string]*fakeBuffer)
	}
	b := &fakeBuffer{}
	f.attached[a.Def().Name()] = b
	return []HistoryBuffer{b}
}

func TestRegistry_Define(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	n := units.Lookup("number")

	id, err := reg.Define("packets", "Packets", n, TypeCounter, DefHistory)
	if err != nil || id != Packets {
		t.Errorf("built-in name must reuse fixed id: %d, %v", id, err)
	}

	id1, _ := reg.Define("frames", "Frames", n, TypeCounter, 0)
	id2, _ := reg.Define("cells", "Cells", n, TypeCounter, 0)
	if id1 != Max+1 || id2 != Max+2 {
		t.Errorf("custom ids = %d, %d, expected %d, %d", id1, id2, Max+1, Max+2)
	}

	if _, err := reg.Define("frames", "Frames again", n, TypeCounter, 0); !errors.Is(err, ErrDuplicateDefinition) {
		t.Errorf("expected ErrDuplicateDefinition, got %v", err)
	}
	if reg.Lookup("frames").Description() != "Frames" {
		t.Errorf("duplicate must not overwrite")
	}
	if _, err := reg.Define("x", "X", nil, TypeCounter, 0); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
	if _, err := reg.Define("y", "Y", n, TypeCounter, DefSigned); !errors.Is(err, ErrSignedCounter) {
		t.Errorf("expected ErrSignedCounter, got %v", err)
	}

	// ids are never reused, failed defines do not consume one
	id3, _ := reg.Define("z", "Z", n, TypeRate, DefSigned)
	if id3 != Max+3 {
		t.Errorf("id3 = %d", id3)
	}

	if reg.LookupID(id2).Name() != "cells" || reg.Lookup("nope") != nil || reg.LookupID(999) != nil {
		t.Errorf("lookup mismatch")
	}

	var order []string
	for _, d := range reg.Definitions() {
		order = append(order, d.Name())
	}
	if !equal(order, []string{"packets", "frames", "cells", "z"}) {
		t.Errorf("registration order = %v", order)
	}
}

func TestRegistry_DefineDefaultsKeepsExisting(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	reg.Define("bytes", "Octets", units.Lookup("byte"), TypeCounter, 0)
	if err := reg.DefineDefaults(units); err != nil {
		t.Fatalf("DefineDefaults: %v", err)
	}
	if d := reg.LookupID(Bytes); d.Description() != "Octets" {
		t.Errorf("configured definition replaced: %q", d.Description())
	}
	if d := reg.LookupID(BPS); d == nil || d.Type() != TypeRate || d.Unit().Name() != "bit" {
		t.Errorf("bps definition = %+v", d)
	}
	for id := Bytes; id <= Max; id++ {
		if reg.LookupID(id) == nil {
			t.Errorf("built-in id %d not defined", id)
		}
	}
}

func TestEngine_UpdateUnknownID(t *testing.T) {
	e, _ := testEngine(t)
	c := NewCollection("eth0")
	e.Update(c, 999, 1, 1, UpdateRx|UpdateTx)
	if c.Len() != 0 || c.Lookup(999) != nil {
		t.Errorf("unknown id must be ignored")
	}
}

func TestEngine_UpdateFlags(t *testing.T) {
	e, _ := testEngine(t)
	c := NewCollection("eth0")

	save := timeNow
	defer func() { timeNow = save }()
	t0 := time.Unix(1234, 0)
	timeNow = func() time.Time { return t0 }

	e.Update(c, Errors, 5, 7, UpdateRx)
	a := c.Lookup(Errors)
	if a == nil {
		t.Fatalf("attribute not created")
	}
	if a.Rx.Current != 5 || a.Tx.Current != 0 {
		t.Errorf("only rx expected: %+v %+v", a.Rx, a.Tx)
	}
	if !a.Has(FlagRxEnabled) || a.Has(FlagTxEnabled) {
		t.Errorf("flags = %#x", a.Flags())
	}
	if !a.LastUpdate().Equal(t0) {
		t.Errorf("last update not refreshed")
	}
	if a.Has(FlagIs64Bit) {
		t.Errorf("errors is not 64bit by default")
	}

	timeNow = func() time.Time { return t0.Add(time.Hour) }
	e.Update(c, Errors, 0, 0, 0)
	if !a.LastUpdate().Equal(t0) {
		t.Errorf("last update must not change without a sample")
	}

	e.Update(c, Errors, 0, 9, UpdateTx|Update64Bit)
	if a.Tx.Current != 9 || !a.Has(FlagTxEnabled) || !a.Has(FlagIs64Bit) {
		t.Errorf("tx update: %+v flags %#x", a.Tx, a.Flags())
	}
	if c.Len() != 1 {
		t.Errorf("at most one attribute per id, got %d", c.Len())
	}
}

func TestEngine_CounterWidth(t *testing.T) {
	e, _ := testEngine(t)
	t0 := time.Unix(10000, 0)

	// 32bit samples of the default bytes counter wrap at 2^32
	c := NewCollection("eth0")
	e.Update(c, Bytes, math.MaxUint32-5, 0, UpdateRx)
	e.NotifyAll(c, t0)
	e.Update(c, Bytes, 5, 0, UpdateRx)
	e.NotifyAll(c, t0.Add(time.Second))

	a := c.Lookup(Bytes)
	if a.Has(FlagIs64Bit) {
		t.Errorf("bytes must not default to 64bit")
	}
	if a.Rx.Total != math.MaxUint32+6 {
		t.Errorf("total = %d, expected %d", a.Rx.Total, uint64(math.MaxUint32+6))
	}
	if a.Rx.Rate != 11 {
		t.Errorf("rate = %v, expected 11", a.Rx.Rate)
	}

	// 64bit samples are not wrapped at 2^32
	c = NewCollection("eth1")
	e.Update(c, Packets, math.MaxUint32-5, 0, UpdateRx|Update64Bit)
	e.NotifyAll(c, t0)
	e.Update(c, Packets, math.MaxUint32+5, 0, UpdateRx|Update64Bit)
	e.NotifyAll(c, t0.Add(time.Second))

	p := c.Lookup(Packets)
	if !p.Has(FlagIs64Bit) || p.Rx.Rate != 10 {
		t.Errorf("64bit packets: rate %v flags %#x", p.Rx.Rate, p.Flags())
	}

	// a later 32bit sample clears the width again
	e.Update(c, Packets, 1, 0, UpdateRx)
	if p.Has(FlagIs64Bit) {
		t.Errorf("width must follow the latest sample")
	}
	// no sample, no change
	e.Update(c, Packets, 0, 0, Update64Bit)
	e.Update(c, Packets, 0, 0, 0)
	if !p.Has(FlagIs64Bit) {
		t.Errorf("width lost without a sample")
	}
}

func TestEngine_DeclaredWidth(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	id, err := reg.Define("octets", "Octets", units.Lookup("byte"), TypeCounter, DefIs64Bit)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(DefaultConfig, reg, units, nil)
	c := NewCollection("eth0")

	e.Update(c, id, 1, 0, UpdateRx)
	if a := c.Lookup(id); !a.Has(FlagIs64Bit) {
		t.Errorf("declared 64bit width must be kept, flags %#x", a.Flags())
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	if _, err := reg.Define("bytes", "Bytes", units.Lookup("byte"), TypeCounter, DefIs64Bit); err != nil {
		t.Fatal(err)
	}
	interval := 2 * time.Second
	e := NewEngine(Config{RateInterval: interval, Variance: 0.1}, reg, units, nil)
	c := NewCollection("eth0")

	t0 := time.Unix(10000, 0)
	e.Update(c, Bytes, 100, 50, UpdateRx|UpdateTx)
	e.NotifyAll(c, t0)

	a := c.Lookup(Bytes)
	if a.Rx.Total != 100 || a.Tx.Total != 50 {
		t.Errorf("totals = %d/%d, expected 100/50", a.Rx.Total, a.Tx.Total)
	}
	if a.Rx.Rate != 0 || a.Tx.Rate != 0 {
		t.Errorf("first sample must not produce a rate")
	}

	e.Update(c, Bytes, 1100, 550, UpdateRx|UpdateTx)
	e.NotifyAll(c, t0.Add(interval))
	if a.Rx.Total != 1100 || a.Tx.Total != 550 {
		t.Errorf("totals = %d/%d, expected 1100/550", a.Rx.Total, a.Tx.Total)
	}
	if a.Rx.Rate != 1000/interval.Seconds() {
		t.Errorf("rx rate = %v, expected %v", a.Rx.Rate, 1000/interval.Seconds())
	}
	if a.Tx.Rate != 500/interval.Seconds() {
		t.Errorf("tx rate = %v", a.Tx.Rate)
	}

	rx, tx := e.Rate2Float(a)
	if rx.Value != 500 || rx.Unit != "B" || rx.Precision != 0 {
		t.Errorf("Rate2Float rx = %+v", rx)
	}
	if tx.Value != 250 || tx.Unit != "B" {
		t.Errorf("Rate2Float tx = %+v", tx)
	}
	rt, _ := e.Total2Float(a)
	if rt.Unit != "KiB" || rt.Precision != 2 {
		t.Errorf("Total2Float rx = %+v", rt)
	}
}

func TestEngine_NotifyRateType(t *testing.T) {
	e, _ := testEngine(t)
	c := NewCollection("eth0")
	t0 := time.Unix(10000, 0)

	e.Update(c, Qlen, 17, 3, UpdateRx|UpdateTx)
	a := c.Lookup(Qlen)
	e.Notify(a, t0)
	if a.Rx.Rate != 17 || a.Rx.Total != 17 || a.Rx.Prev != 17 || a.Tx.Rate != 3 {
		t.Errorf("rate type: %+v %+v", a.Rx, a.Tx)
	}
	e.Update(c, Qlen, 2, 3, UpdateRx)
	e.Notify(a, t0.Add(time.Millisecond))
	if a.Rx.Rate != 2 || a.Rx.Total != 2 {
		t.Errorf("rate type must not accumulate: %+v", a.Rx)
	}
}

func TestEngine_CalcUsage(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	reg.Define("bytes", "Bytes", units.Lookup("byte"), TypeCounter, 0)
	reg.Define("cpu", "CPU", units.Lookup("number"), TypePercent, DefIsUsage)
	e := NewEngine(DefaultConfig, reg, units, nil)
	c := NewCollection("host")

	cpu := reg.Lookup("cpu").ID()
	e.Update(c, cpu, 40, 60, UpdateRx|UpdateTx)
	a := c.Lookup(cpu)
	e.Notify(a, time.Unix(1, 0))
	if rx, tx := e.CalcUsage(a, 0, 0); rx != 40 || tx != 60 {
		t.Errorf("percent usage = %v/%v", rx, tx)
	}

	e.Update(c, Bytes, 0, 0, UpdateRx)
	b := c.Lookup(Bytes)
	b.Rx.Rate = 125
	rx, tx := e.CalcUsage(b, 1000, 0)
	if rx != 12.5 {
		t.Errorf("rx usage = %v", rx)
	}
	if tx != math.MaxFloat64 {
		t.Errorf("unbounded tx usage = %v", tx)
	}
}

func TestEngine_History(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	reg := NewRegistry()
	if err := reg.DefineDefaults(units); err != nil {
		t.Fatal(err)
	}
	h := &fakeAttacher{}
	e := NewEngine(DefaultConfig, reg, units, h)

	c := NewCollection("eth0")
	c.SetKeys(reg.LookupID(Errors), nil)

	for _, id := range []int{Bytes, Errors, Drop} {
		e.Update(c, id, 1, 1, UpdateRx)
	}

	// bytes has the history flag, errors is a key attribute
	if _, ok := h.attached["bytes"]; !ok {
		t.Errorf("bytes should collect history")
	}
	if _, ok := h.attached["errors"]; !ok {
		t.Errorf("key attribute should collect history")
	}
	if _, ok := h.attached["drop"]; ok {
		t.Errorf("drop should not collect history")
	}
	if !c.Lookup(Bytes).Has(FlagHistory) || c.Lookup(Drop).Has(FlagHistory) {
		t.Errorf("history flag mismatch")
	}

	t0 := time.Unix(100, 0)
	e.NotifyAll(c, t0)
	e.NotifyAll(c, t0.Add(time.Second))
	if n := len(h.attached["bytes"].updates); n != 2 {
		t.Errorf("history updates = %d, expected 2", n)
	}

	// attaching again is a no-op
	prev := h.attached["bytes"]
	e.CollectHistory(c.Lookup(Bytes))
	if h.attached["bytes"] != prev || len(c.Lookup(Bytes).History()) != 1 {
		t.Errorf("attachHistory must be idempotent")
	}

	e.CollectHistory(c.Lookup(Drop))
	if !c.Lookup(Drop).Has(FlagHistory) || h.attached["drop"] == nil {
		t.Errorf("drop history not attached")
	}
}
