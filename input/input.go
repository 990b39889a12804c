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

// Package input contains the acquisition backends. Every read cycle
// the selected modules report raw counters of the elements they know
// about into the element registry.
package input

import (
	"context"
	"fmt"
	"strconv"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/module"
)

// Module is an input backend.
type Module interface {
	module.Module
	// Read updates all elements known to the module and notifies
	// them.
	Read(ctx context.Context) error
}

// Subsys is the set of input modules.
type Subsys = module.Subsys[Module]

// DefaultPrimary lists the modules tried, in order, when no input was
// selected.
var DefaultPrimary = []string{"proc"}

// NewSubsys returns the input subsystem with all modules registered.
func NewSubsys(reg *element.Registry) *Subsys {
	s := module.NewSubsys[Module]("input")
	s.Register(NewDummy(reg))
	s.Register(NewProc(reg))
	s.Register(NewSNMP(reg))
	s.Register(NewNull())
	return s
}

// Read runs one read of all selected modules.
func Read(ctx context.Context, s *Subsys) error {
	return s.Each(func(m Module) error {
		if err := m.Read(ctx); err != nil {
			return fmt.Errorf("input %s: %v", m.Name(), err)
		}
		return nil
	})
}

// base holds what all interface reading modules share.
type base struct {
	reg   *element.Registry
	group string
}

// lookup returns the element, creating and setting it up on first
// sight. It returns nil if the element is rejected by policy.
func (b *base) lookup(name string) *element.Element {
	return lookupElement(b.reg, b.reg.Group(b.group), name)
}

func lookupElement(reg *element.Registry, g *element.Group, name string) *element.Element {
	if el := reg.Lookup(g, name, false); el != nil {
		return el
	}
	el := reg.Lookup(g, name, true)
	if el == nil {
		return nil
	}
	el.SetKeyAttrs(reg.Engine().Definitions(), attr.Bytes, attr.Packets)
	el.SetUsageAttr(attr.Bytes)
	return el
}

func parseUint(key, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return n, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.ParseInt(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return int(n), nil
}

// null reads nothing. It is useful for testing outputs.
type null struct{}

func NewNull() Module { return null{} }

func (null) Name() string                        { return "null" }
func (null) Primary() bool                       { return true }
func (null) ParseOption(key, value string) error { return nil }
func (null) Probe() bool                         { return true }
func (null) NoDefault() bool                     { return true }
func (null) Init() error                         { return nil }
func (null) Shutdown() error                     { return nil }
func (null) Read(ctx context.Context) error      { return nil }
