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

package module

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeModule struct {
	name     string
	primary  bool
	probe    bool
	opts     []Option
	inits    int
	shutdown int
}

func (f *fakeModule) Name() string  { return f.name }
func (f *fakeModule) Primary() bool { return f.primary }
func (f *fakeModule) Probe() bool   { return f.probe }
func (f *fakeModule) Init() error {
	f.inits++
	return nil
}
func (f *fakeModule) Shutdown() error {
	f.shutdown++
	return nil
}
func (f *fakeModule) ParseOption(k, v string) error {
	if k == "bad" {
		return fmt.Errorf("bad option")
	}
	f.opts = append(f.opts, Option{k, v})
	return nil
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams("dummy:num=3;randomize;seed=7,proc,snmp:host=10.0.0.1")
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("params = %d", len(params))
	}
	d := params[0]
	if d.Name != "dummy" || len(d.Options) != 3 {
		t.Errorf("dummy = %+v", d)
	}
	if d.Options[0] != (Option{"num", "3"}) || d.Options[1] != (Option{"randomize", ""}) || d.Options[2] != (Option{"seed", "7"}) {
		t.Errorf("dummy options = %+v", d.Options)
	}
	if params[1].Name != "proc" || len(params[1].Options) != 0 {
		t.Errorf("proc = %+v", params[1])
	}
	if params[2].Options[0] != (Option{"host", "10.0.0.1"}) {
		t.Errorf("snmp = %+v", params[2])
	}

	if _, err := ParseParams("dummy,,proc"); err == nil {
		t.Errorf("empty name must fail")
	}
}

func testSubsys() (*Subsys[*fakeModule], map[string]*fakeModule) {
	mods := map[string]*fakeModule{
		"a":   {name: "a", primary: true, probe: false},
		"b":   {name: "b", primary: true, probe: true},
		"c":   {name: "c", primary: true, probe: true},
		"sec": {name: "sec", probe: true},
		"off": {name: "off", probe: false},
	}
	s := NewSubsys[*fakeModule]("input")
	for _, n := range []string{"a", "b", "c", "sec", "off"} {
		s.Register(mods[n])
	}
	return s, mods
}

func TestSubsys_SetPrimary(t *testing.T) {
	s, mods := testSubsys()
	if err := s.SetPrimary("nope,a,sec,c:x=1;bad,b:k=v"); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}
	if p, ok := s.Primary(); !ok || p != mods["b"] {
		t.Errorf("primary = %v", p)
	}
	if len(mods["b"].opts) != 1 || mods["b"].opts[0] != (Option{"k", "v"}) {
		t.Errorf("options not passed: %+v", mods["b"].opts)
	}

	s, _ = testSubsys()
	if err := s.SetPrimary("a,sec"); !errors.Is(err, ErrNoModule) {
		t.Errorf("expected ErrNoModule, got %v", err)
	}
}

func TestSubsys_FindPrimary(t *testing.T) {
	s, mods := testSubsys()
	if err := s.FindPrimary("a", "c"); err != nil {
		t.Fatal(err)
	}
	if p, _ := s.Primary(); p != mods["c"] {
		t.Errorf("primary = %s, expected c", p.Name())
	}

	s, mods = testSubsys()
	s.FindPrimary("a")
	if p, _ := s.Primary(); p != mods["b"] {
		t.Errorf("fallback primary = %s, expected b", p.Name())
	}

	empty := NewSubsys[*fakeModule]("output")
	if err := empty.FindPrimary(); !errors.Is(err, ErrNoModule) {
		t.Errorf("expected ErrNoModule, got %v", err)
	}
}

func TestSubsys_Secondary(t *testing.T) {
	s, mods := testSubsys()
	if err := s.AddSecondary("sec:x,off"); err != nil {
		t.Fatalf("AddSecondary: %v", err)
	}
	if err := s.AddSecondary("missing"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("expected ErrUnknownModule, got %v", err)
	}
	s.SetPrimary("b")

	var seen []string
	s.Each(func(m *fakeModule) error {
		seen = append(seen, m.Name())
		return nil
	})
	if strings.Join(seen, ",") != "b,sec" {
		t.Errorf("Each visited %v", seen)
	}

	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	s.Shutdown()
	if mods["b"].inits != 1 || mods["sec"].inits != 1 || mods["off"].inits != 0 {
		t.Errorf("init counts mismatch")
	}
	if mods["b"].shutdown != 1 || mods["sec"].shutdown != 1 {
		t.Errorf("shutdown counts mismatch")
	}
}

func TestSubsys_List(t *testing.T) {
	s, _ := testSubsys()
	l := s.List()
	if !strings.HasPrefix(l, "input modules:\n") || !strings.Contains(l, "\tsec (secondary)\n") || !strings.Contains(l, "\ta (primary)\n") {
		t.Errorf("List() = %q", l)
	}
	if l := NewSubsys[*fakeModule]("output").List(); !strings.Contains(l, "No output modules found") {
		t.Errorf("List() = %q", l)
	}
}
