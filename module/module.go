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

// Package module provides the plumbing shared by the input and output
// subsystems: a module is selected and configured with a parameter
// string of the form
//
//	NAME[:OPT[=VAL][;OPT[=VAL]...]][,NAME...]
//
// e.g. "dummy:num=3;randomize,proc". A subsystem has exactly one
// primary module and any number of secondary ones.
package module

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

var (
	ErrUnknownModule = errors.New("unknown module")
	ErrNoModule      = errors.New("no working module found")
)

// Module is what every input and output backend implements.
type Module interface {
	Name() string
	// Primary reports whether the module can serve as the primary
	// module of its subsystem.
	Primary() bool
	// ParseOption is called for every option given on the command
	// line, before Probe. A value-less option has an empty value.
	ParseOption(key, value string) error
	// Probe reports whether the module can work on this system.
	Probe() bool
	Init() error
	Shutdown() error
}

// Option is a single module option.
type Option struct {
	Key, Value string
}

// Param is the selection of one module along with its options.
type Param struct {
	Name    string
	Options []Option
}

// ParseParams parses a module parameter string.
func ParseParams(s string) ([]Param, error) {
	var params []Param
	for _, m := range strings.Split(s, ",") {
		name, opts, _ := strings.Cut(m, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("no module name given in %q", s)
		}
		p := Param{Name: name}
		if opts != "" {
			for _, o := range strings.Split(opts, ";") {
				if o == "" {
					continue
				}
				k, v, _ := strings.Cut(o, "=")
				p.Options = append(p.Options, Option{Key: k, Value: v})
			}
		}
		params = append(params, p)
	}
	return params, nil
}

// Subsys is a set of modules of one kind, e.g. all inputs.
type Subsys[M Module] struct {
	name    string
	modules []M

	primary   M
	ok        bool
	secondary []M
}

// NewSubsys returns an empty subsystem. name is used in messages.
func NewSubsys[M Module](name string) *Subsys[M] {
	return &Subsys[M]{name: name}
}

// Register makes a module available for selection.
func (s *Subsys[M]) Register(m M) { s.modules = append(s.modules, m) }

// Lookup returns the registered module with the given name.
func (s *Subsys[M]) Lookup(name string) (M, bool) {
	for _, m := range s.modules {
		if m.Name() == name {
			return m, true
		}
	}
	var zero M
	return zero, false
}

func configure(m Module, opts []Option) error {
	for _, o := range opts {
		if err := m.ParseOption(o.Key, o.Value); err != nil {
			return fmt.Errorf("module %s: %v", m.Name(), err)
		}
	}
	if !m.Probe() {
		return fmt.Errorf("module %s: probe failed", m.Name())
	}
	return nil
}

// SetPrimary selects the first module of the parameter string which
// exists, accepts its options and probes successfully.
func (s *Subsys[M]) SetPrimary(param string) error {
	params, err := ParseParams(param)
	if err != nil {
		return err
	}
	for _, p := range params {
		m, found := s.Lookup(p.Name)
		if !found || !m.Primary() {
			log.Printf("Unknown primary %s module: %s", s.name, p.Name)
			continue
		}
		if err := configure(m, p.Options); err != nil {
			log.Printf("Skipping %s module: %v", s.name, err)
			continue
		}
		s.primary, s.ok = m, true
		return nil
	}
	return fmt.Errorf("%w: %s %q", ErrNoModule, s.name, param)
}

// AddSecondary enables every module of the parameter string as a
// secondary module. An unknown name is an error, a module failing to
// probe is skipped.
func (s *Subsys[M]) AddSecondary(param string) error {
	params, err := ParseParams(param)
	if err != nil {
		return err
	}
	for _, p := range params {
		m, found := s.Lookup(p.Name)
		if !found {
			return fmt.Errorf("%w: %s module %q", ErrUnknownModule, s.name, p.Name)
		}
		if err := configure(m, p.Options); err != nil {
			log.Printf("Skipping %s module: %v", s.name, err)
			continue
		}
		s.secondary = append(s.secondary, m)
	}
	return nil
}

// FindPrimary selects a primary module if none was set: the first of
// defaults which probes successfully, then any primary module which
// does. Modules with a NoDefault method returning true are only
// selected by name.
func (s *Subsys[M]) FindPrimary(defaults ...string) error {
	if s.ok {
		return nil
	}
	for _, name := range defaults {
		if m, found := s.Lookup(name); found && m.Primary() && m.Probe() {
			s.primary, s.ok = m, true
			return nil
		}
	}
	for _, m := range s.modules {
		if nd, ok := any(m).(interface{ NoDefault() bool }); ok && nd.NoDefault() {
			continue
		}
		if m.Primary() && m.Probe() {
			s.primary, s.ok = m, true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoModule, s.name)
}

// Primary returns the primary module.
func (s *Subsys[M]) Primary() (M, bool) { return s.primary, s.ok }

// Each calls fn for the primary and then every secondary module. It
// stops at the first error.
func (s *Subsys[M]) Each(fn func(M) error) error {
	if s.ok {
		if err := fn(s.primary); err != nil {
			return err
		}
	}
	for _, m := range s.secondary {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// Init initializes all selected modules.
func (s *Subsys[M]) Init() error {
	return s.Each(func(m M) error {
		if err := m.Init(); err != nil {
			return fmt.Errorf("%s module %s: %v", s.name, m.Name(), err)
		}
		return nil
	})
}

// Shutdown shuts down all selected modules, logging errors.
func (s *Subsys[M]) Shutdown() {
	s.Each(func(m M) error {
		if err := m.Shutdown(); err != nil {
			log.Printf("Error shutting down %s module %s: %v", s.name, m.Name(), err)
		}
		return nil
	})
}

// List describes the registered modules.
func (s *Subsys[M]) List() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s modules:\n", s.name)
	if len(s.modules) == 0 {
		fmt.Fprintf(&b, "\tNo %s modules found.\n", s.name)
		return b.String()
	}
	names := make([]string, 0, len(s.modules))
	kind := make(map[string]string)
	for _, m := range s.modules {
		names = append(names, m.Name())
		kind[m.Name()] = "secondary"
		if m.Primary() {
			kind[m.Name()] = "primary"
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "\t%s (%s)\n", n, kind[n])
	}
	return b.String()
}
