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
	"errors"
	"math"
	"testing"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/unit"
)

func TestPdp_addValue(t *testing.T) {
	var p pdp
	if !math.IsNaN(p.Value()) {
		t.Errorf("empty pdp must be NaN")
	}
	p.addValue(1, time.Second)
	p.addValue(3, 3*time.Second)
	p.addValue(math.NaN(), time.Second)
	p.addValue(100, 0)
	if p.Value() != 2.5 || p.Duration() != 4*time.Second {
		t.Errorf("pdp = %v/%v, expected 2.5/4s", p.Value(), p.Duration())
	}
	if v := p.reset(); v != 2.5 || p.Duration() != 0 {
		t.Errorf("reset() = %v", v)
	}
}

func TestArchive_update(t *testing.T) {
	a := newArchive(time.Second, 4, Type64.Max())
	t0 := time.Unix(10, 0)

	a.update(t0, t0.Add(time.Second), 5)
	a.update(t0.Add(time.Second), t0.Add(1500*time.Millisecond), 6)
	vals := a.values()
	if vals[3] != 5 || !math.IsNaN(vals[2]) {
		t.Errorf("values = %v", vals)
	}
	if a.Duration() != 500*time.Millisecond {
		t.Errorf("partial slot duration = %v", a.Duration())
	}

	a.update(t0.Add(1500*time.Millisecond), t0.Add(2*time.Second), 8)
	if v := a.values()[3]; v != 7 {
		t.Errorf("weighted slot = %v, expected 7", v)
	}

	// skip three slots
	a.update(t0.Add(5*time.Second), t0.Add(6*time.Second), 9)
	vals = a.values()
	if !math.IsNaN(vals[0]) || !math.IsNaN(vals[1]) || !math.IsNaN(vals[2]) || vals[3] != 9 {
		t.Errorf("values after gap = %v", vals)
	}
	if !a.latest.Equal(t0.Add(6 * time.Second)) {
		t.Errorf("latest = %v", a.latest)
	}
}

func TestArchive_saturate(t *testing.T) {
	a := newArchive(time.Second, 2, Type8.Max())
	t0 := time.Unix(10, 0)
	a.update(t0, t0.Add(time.Second), 1000)
	if v := a.values()[1]; v != 255 {
		t.Errorf("8bit value = %v, expected 255", v)
	}
}

func TestType_Parse(t *testing.T) {
	for s, typ := range map[string]Type{"8bit": Type8, "16BIT": Type16, "32bit": Type32, "64bit": Type64} {
		if x, err := ParseType(s); err != nil || x != typ {
			t.Errorf("ParseType(%q) = %v, %v", s, x, err)
		}
		if typ.String() != map[Type]string{Type8: "8bit", Type16: "16bit", Type32: "32bit", Type64: "64bit"}[typ] {
			t.Errorf("String() = %q", typ.String())
		}
	}
	if _, err := ParseType("12bit"); err == nil {
		t.Errorf("12bit must be rejected")
	}
}

func TestStore_Define(t *testing.T) {
	s := NewStore(0.1)
	if err := s.Define(Definition{Name: "second", Interval: time.Second, Size: 60}); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if err := s.Define(Definition{Name: "second", Interval: time.Second, Size: 60}); !errors.Is(err, ErrDuplicateDefinition) {
		t.Errorf("expected ErrDuplicateDefinition, got %v", err)
	}
	if err := s.Define(Definition{Name: "x", Interval: 0, Size: 60}); err == nil {
		t.Errorf("zero interval must be rejected")
	}
	if err := s.Define(Definition{Name: "y", Interval: time.Second}); err == nil {
		t.Errorf("zero size must be rejected")
	}
	if len(s.Definitions()) != 1 {
		t.Errorf("definitions = %d", len(s.Definitions()))
	}
}

func TestBuffer_Engine(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	defs := attr.NewRegistry()
	if err := defs.DefineDefaults(units); err != nil {
		t.Fatal(err)
	}
	store := NewStore(0.1)
	store.Define(Definition{Name: "second", Interval: time.Second, Size: 60, Type: Type64})
	store.Define(Definition{Name: "minute", Interval: time.Minute, Size: 60, Type: Type32})

	e := attr.NewEngine(attr.DefaultConfig, defs, units, store)
	c := attr.NewCollection("eth0")

	t0 := time.Unix(100, 0)
	for i, rx := range []uint64{1000, 2000, 4000} {
		e.Update(c, attr.Bytes, rx, 0, attr.UpdateRx)
		e.NotifyAll(c, t0.Add(time.Duration(i)*time.Second))
	}

	a := c.Lookup(attr.Bytes)
	bufs := Buffers(a)
	if len(bufs) != 2 {
		t.Fatalf("buffers = %d, expected 2", len(bufs))
	}
	sec := bufs[0]
	if sec.Definition().Name != "second" {
		t.Errorf("first buffer = %s", sec.Definition().Name)
	}

	rx := sec.Rx()
	if len(rx) != 60 {
		t.Fatalf("len = %d", len(rx))
	}
	if rx[58] != 1000 || rx[59] != 1750 {
		t.Errorf("rx history tail = %v %v, expected 1000 1750", rx[58], rx[59])
	}
	if !sec.Latest().Equal(t0.Add(2 * time.Second)) {
		t.Errorf("latest = %v", sec.Latest())
	}
	if tx := sec.Tx(); !math.IsNaN(tx[59]) {
		t.Errorf("tx without samples must be unknown, got %v", tx[59])
	}

	// the minute slot is not complete yet
	if !bufs[1].Latest().IsZero() || !math.IsNaN(bufs[1].Rx()[59]) {
		t.Errorf("minute history must be empty")
	}

	// attributes without history get no buffers
	e.Update(c, attr.Drop, 1, 1, attr.UpdateRx)
	if len(Buffers(c.Lookup(attr.Drop))) != 0 {
		t.Errorf("drop must not have history")
	}
}

func TestBuffer_Variance(t *testing.T) {
	units := unit.NewTable(false, unit.DynamicExp)
	defs := attr.NewRegistry()
	defs.DefineDefaults(units)
	store := NewStore(0.1)
	store.Define(Definition{Name: "second", Interval: time.Second, Size: 10})
	e := attr.NewEngine(attr.DefaultConfig, defs, units, store)
	c := attr.NewCollection("eth0")

	t0 := time.Unix(100, 0)
	e.Update(c, attr.Packets, 10, 10, attr.UpdateRx|attr.UpdateTx)
	e.NotifyAll(c, t0)
	e.Update(c, attr.Packets, 20, 30, attr.UpdateRx|attr.UpdateTx)
	// 50ms early, still completes the slot ending at t0+1s
	e.NotifyAll(c, t0.Add(950*time.Millisecond))

	b := Buffers(c.Lookup(attr.Packets))[0]
	if !b.Latest().Equal(t0.Add(time.Second)) {
		t.Errorf("latest = %v, expected %v", b.Latest(), t0.Add(time.Second))
	}
	if rx, tx := b.Rx()[9], b.Tx()[9]; rx == 0 || tx == 0 || math.IsNaN(rx) {
		t.Errorf("slot values = %v %v", rx, tx)
	}
}
