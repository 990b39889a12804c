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

package element

import (
	"testing"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/unit"
)

func testRegistry(t *testing.T, opts Options) *Registry {
	units := unit.NewTable(false, unit.DynamicExp)
	defs := attr.NewRegistry()
	if err := defs.DefineDefaults(units); err != nil {
		t.Fatalf("DefineDefaults: %v", err)
	}
	return NewRegistry(attr.NewEngine(attr.DefaultConfig, defs, units, nil), opts)
}

func TestPolicy_Allow(t *testing.T) {
	p, err := ParsePolicy("eth*, lo,!eth1")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	for name, expect := range map[string]bool{
		"eth0": true, "eth1": false, "lo": true, "wlan0": false,
	} {
		if p.Allow(name) != expect {
			t.Errorf("Allow(%q) = %v, expected %v", name, !expect, expect)
		}
	}

	p, _ = ParsePolicy("!docker*")
	if !p.Allow("eth0") || p.Allow("docker0") {
		t.Errorf("deny-only policy mismatch")
	}

	var nilPolicy *Policy
	if !nilPolicy.Allow("anything") {
		t.Errorf("nil policy must allow")
	}

	if _, err := ParsePolicy("eth["); err == nil {
		t.Errorf("expected error for malformed pattern")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	p, _ := ParsePolicy("!lo")
	r := testRegistry(t, Options{Lifecycles: 3, Policy: p})
	r.Configure(Config{Name: "eth0", Description: "uplink", RxMax: 1000, TxMax: 2000})
	r.Configure(Config{Name: "eth1", Hide: true})

	g := r.Group(DefaultGroup)
	if r.Group(DefaultGroup) != g {
		t.Errorf("Group must return the existing group")
	}

	if r.Lookup(g, "eth0", false) != nil {
		t.Errorf("Lookup without create must not create")
	}
	el := r.Lookup(g, "eth0", true)
	if el == nil {
		t.Fatalf("eth0 not created")
	}
	if r.Lookup(g, "eth0", true) != el {
		t.Errorf("second Lookup must return the same element")
	}
	if el.Description() != "uplink" || el.RxMax != 1000 || el.TxMax != 2000 {
		t.Errorf("element config not applied: %+v", el)
	}
	if el.Lifecycles() != 3 || el.Group() != g {
		t.Errorf("lifecycles/group mismatch")
	}
	if r.Lookup(g, "lo", true) != nil {
		t.Errorf("policy must reject lo")
	}
	if !r.Lookup(g, "eth1", true).Hidden() {
		t.Errorf("eth1 must be hidden")
	}
	if len(r.Elements()) != 2 || len(r.Visible()) != 1 {
		t.Errorf("elements = %d, visible = %d", len(r.Elements()), len(r.Visible()))
	}

	r2 := testRegistry(t, Options{ShowAll: true})
	r2.Configure(Config{Name: "eth1", Hide: true})
	if r2.Lookup(r2.Group(DefaultGroup), "eth1", true).Hidden() {
		t.Errorf("show all must override hide")
	}
}

func TestRegistry_UpdateNotify(t *testing.T) {
	r := testRegistry(t, Options{})
	el := r.Lookup(r.Group(DefaultGroup), "eth0", true)
	el.SetKeyAttrs(r.Engine().Definitions(), attr.Bytes, attr.Packets)
	el.SetUsageAttr(attr.Bytes)

	if el.UsageAttr() != nil {
		t.Errorf("usage attribute must be nil before the first update")
	}

	t0 := time.Unix(1000, 0)
	r.Update(el, attr.Errors, 1, 1, attr.UpdateRx|attr.UpdateTx)
	r.Update(el, attr.Packets, 10, 10, attr.UpdateRx|attr.UpdateTx)
	r.Update(el, attr.Bytes, 100, 100, attr.UpdateRx|attr.UpdateTx)
	r.Notify(el, t0)

	if !el.Updated() {
		t.Errorf("Notify must mark the element updated")
	}
	a := el.UsageAttr()
	if a == nil || a.ID() != attr.Bytes || a.Rx.Total != 100 {
		t.Errorf("usage attribute = %+v", a)
	}

	var order []int
	for _, a := range el.Attrs().Sorted() {
		order = append(order, a.ID())
	}
	if len(order) != 3 || order[0] != attr.Bytes || order[1] != attr.Packets || order[2] != attr.Errors {
		t.Errorf("attribute order = %v", order)
	}

	save := timeNow
	defer func() { timeNow = save }()
	timeNow = func() time.Time { return t0.Add(time.Second) }
	r.Update(el, attr.Bytes, 1100, 100, attr.UpdateRx|attr.UpdateTx)
	r.Notify(el, time.Time{})
	if el.UsageAttr().Rx.Rate != 1000 {
		t.Errorf("rate = %v, expected 1000", el.UsageAttr().Rx.Rate)
	}
}

func TestRegistry_FreeUnused(t *testing.T) {
	r := testRegistry(t, Options{Lifecycles: 2})
	g := r.Group(DefaultGroup)
	eth0 := r.Lookup(g, "eth0", true)
	eth1 := r.Lookup(g, "eth1", true)
	r.SetCurrent(eth1)

	for i := 0; i < 2; i++ {
		r.ResetUpdateFlags()
		r.Notify(eth0, time.Unix(int64(100+i), 0))
		r.Lifesign(eth0, 1)
		n := r.FreeUnused()
		if i == 0 && n != 0 {
			t.Errorf("cycle 0 freed %d", n)
		}
		if i == 1 && n != 1 {
			t.Errorf("cycle 1 freed %d, expected 1", n)
		}
	}

	if r.Lookup(g, "eth1", false) != nil {
		t.Errorf("eth1 must be freed")
	}
	if eth0.Lifecycles() != 2 {
		t.Errorf("eth0 lifecycles = %d", eth0.Lifecycles())
	}
	if r.Current() != eth0 {
		t.Errorf("current element must move off the freed element")
	}
}

func TestRegistry_Selection(t *testing.T) {
	r := testRegistry(t, Options{})

	if r.Current() != nil || r.NextElement() != nil {
		t.Errorf("empty registry has no current element")
	}
	if r.SelectFirstAttr() != nil || r.SelectLastAttr() != nil || r.SelectNextAttr() != nil ||
		r.SelectPrevAttr() != nil || r.CurrentAttr() != nil {
		t.Errorf("attribute selection without an element must be nil")
	}

	g := r.Group(DefaultGroup)
	a := r.Lookup(g, "a", true)
	b := r.Lookup(r.Group("other"), "b", true)

	if r.Current() != a {
		t.Errorf("Current() must select the first element")
	}
	if r.NextElement() != b || r.NextElement() != a {
		t.Errorf("NextElement must wrap around")
	}
	if r.PrevElement() != b {
		t.Errorf("PrevElement must wrap around")
	}

	// b has no attributes yet
	if r.CurrentAttr() != nil {
		t.Errorf("empty element has no current attribute")
	}

	r.Update(b, attr.Bytes, 1, 1, attr.UpdateRx)
	r.Update(b, attr.Drop, 1, 1, attr.UpdateRx)
	if x := r.CurrentAttr(); x == nil || x.ID() != attr.Bytes {
		t.Errorf("CurrentAttr() = %v", x)
	}
	if x := r.SelectNextAttr(); x.ID() != attr.Drop {
		t.Errorf("SelectNextAttr() = %v", x.ID())
	}
	if x := r.SelectNextAttr(); x.ID() != attr.Bytes {
		t.Errorf("SelectNextAttr() must wrap")
	}
	if x := r.SelectLastAttr(); x.ID() != attr.Drop {
		t.Errorf("SelectLastAttr() = %v", x.ID())
	}
	if x := r.SelectFirstAttr(); x.ID() != attr.Bytes {
		t.Errorf("SelectFirstAttr() = %v", x.ID())
	}
	if x := r.SelectPrevAttr(); x.ID() != attr.Drop {
		t.Errorf("SelectPrevAttr() must wrap")
	}

	b.UpdateInfo("mtu", "1500")
	if v, ok := b.Info("mtu"); !ok || v != "1500" || len(b.InfoKeys()) != 1 {
		t.Errorf("info = %q %v", v, ok)
	}
}
