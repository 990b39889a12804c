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

// Package output contains the presentation and export backends. After
// every read cycle the selected modules are asked to draw the current
// state of the element registry.
package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/module"
)

// ErrQuit is returned by Draw when an output wants the program to
// terminate, e.g. after a fixed number of cycles.
var ErrQuit = errors.New("quit requested")

// Module is an output backend.
type Module interface {
	module.Module
	// Draw is called after every read cycle.
	Draw(ctx context.Context) error
}

// Stepper runs read cycles. Step runs a cycle if one is due at now
// and returns how long to wait before calling it again.
type Stepper interface {
	Step(ctx context.Context, now time.Time) (time.Duration, error)
}

// Driver is implemented by outputs which need to own the main loop,
// such as an interactive UI processing key presses between cycles.
type Driver interface {
	Run(ctx context.Context, s Stepper) error
}

// Subsys is the set of output modules.
type Subsys = module.Subsys[Module]

// DefaultPrimary lists the modules tried, in order, when no output
// was selected.
var DefaultPrimary = []string{"curses", "ascii"}

// NewSubsys returns the output subsystem with all modules registered.
func NewSubsys(reg *element.Registry) *Subsys {
	s := module.NewSubsys[Module]("output")
	s.Register(NewASCII(reg))
	s.Register(NewCurses(reg))
	s.Register(NewSQL(reg))
	s.Register(NewPrometheus(reg))
	return s
}

// Draw asks every selected module to draw. ErrQuit is returned as is.
func Draw(ctx context.Context, s *Subsys) error {
	return s.Each(func(m Module) error {
		err := m.Draw(ctx)
		if err == nil || errors.Is(err, ErrQuit) {
			return err
		}
		return fmt.Errorf("output %s: %w", m.Name(), err)
	})
}

// keyAttrs returns the major and minor key attributes of el, either
// may be nil.
func keyAttrs(el *element.Element) (major, minor *attr.Attribute) {
	c := el.Attrs()
	kmaj, kmin := c.Keys()
	if kmaj != nil {
		major = c.Lookup(kmaj.ID())
	}
	if kmin != nil {
		minor = c.Lookup(kmin.ID())
	}
	return major, minor
}

func formatScaled(s attr.Scaled) string {
	return fmt.Sprintf("%.*f%s", s.Precision, s.Value, s.Unit)
}

// rates formats the rx and tx rates of a, or dashes if a is nil.
func rates(e *attr.Engine, a *attr.Attribute) (rx, tx string) {
	if a == nil {
		return "-", "-"
	}
	r, t := e.Rate2Float(a)
	rx, tx = formatScaled(r), formatScaled(t)
	if !a.Has(attr.FlagRxEnabled) {
		rx = "-"
	}
	if !a.Has(attr.FlagTxEnabled) {
		tx = "-"
	}
	return rx, tx
}
