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
	"fmt"
	"log"
	"strings"

	"github.com/noushi/bmon/unit"
)

// Type is the semantic type of an attribute, which determines how
// rates are derived from the raw samples.
type Type int

const (
	TypeCounter Type = iota // monotonically increasing counter
	TypeRate                // sample is already a rate
	TypePercent             // sample is already a usage percentage
)

func (t Type) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeRate:
		return "rate"
	case TypePercent:
		return "percent"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType parses a config type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "counter", "":
		return TypeCounter, nil
	case "rate":
		return TypeRate, nil
	case "percent":
		return TypePercent, nil
	}
	return TypeCounter, fmt.Errorf("unknown attribute type %q", s)
}

// DefFlag is a property of an attribute definition.
type DefFlag uint8

const (
	DefHistory         DefFlag = 1 << iota // collect history
	DefIgnoreOverflows                     // counter decrease is a reset, not a wrap
	DefIsRate                              // value is a rate already
	DefIs64Bit                             // 64bit counter
	DefIsUsage                             // value is a usage already
	DefSigned                              // signed value
)

// Built-in attribute ids. These are stable across runs and
// configurations, user defined attributes get ids above Max.
const (
	Unspec = iota
	Bytes
	Packets
	Errors
	Drop
	Fifo
	Frame
	Compressed
	Multicast
	Overlimits
	BPS
	PPS
	Qlen
	Backlog
	Requeues
	Collisions
	LengthErrors
	OverErrors
	CRCErrors
	MissedErrors
	AbortedErrors
	HeartbeatErrors
	WindowErrors
	CarrierErrors
	numBuiltin
)

const Max = numBuiltin - 1

var builtinNames = [numBuiltin]string{
	Bytes:           "bytes",
	Packets:         "packets",
	Errors:          "errors",
	Drop:            "drop",
	Fifo:            "fifo",
	Frame:           "frame",
	Compressed:      "compressed",
	Multicast:       "multicast",
	Overlimits:      "overlimits",
	BPS:             "bps",
	PPS:             "pps",
	Qlen:            "qlen",
	Backlog:         "backlog",
	Requeues:        "requeues",
	Collisions:      "collisions",
	LengthErrors:    "len_err",
	OverErrors:      "over_err",
	CRCErrors:       "crc_err",
	MissedErrors:    "missed_err",
	AbortedErrors:   "abort_err",
	HeartbeatErrors: "hbeat_err",
	WindowErrors:    "window_err",
	CarrierErrors:   "carrier_err",
}

func builtinID(name string) int {
	for id, n := range builtinNames {
		if n != "" && n == name {
			return id
		}
	}
	return Unspec
}

var (
	ErrDuplicateDefinition = errors.New("duplicate attribute definition")
	ErrUnknownUnit         = errors.New("unknown unit")
	ErrSignedCounter       = errors.New("counter attributes may not be signed")
)

// Definition describes a kind of attribute. Definitions are immutable
// once registered.
type Definition struct {
	id          int
	name        string
	description string
	typ         Type
	unit        *unit.Unit
	flags       DefFlag
}

func (d *Definition) ID() int             { return d.id }
func (d *Definition) Name() string        { return d.name }
func (d *Definition) Description() string { return d.description }
func (d *Definition) Type() Type          { return d.typ }
func (d *Definition) Unit() *unit.Unit    { return d.unit }
func (d *Definition) Flags() DefFlag      { return d.flags }
func (d *Definition) Has(f DefFlag) bool  { return d.flags&f != 0 }

// attrFlags converts the definition flags into the initial flags of a
// new attribute. History is left out, it is only set once history is
// actually attached.
func (d *Definition) attrFlags() Flag {
	var f Flag
	if d.Has(DefIgnoreOverflows) {
		f |= FlagIgnoreOverflows
	}
	if d.Has(DefIsRate) {
		f |= FlagIsRate
	}
	if d.Has(DefIs64Bit) {
		f |= FlagIs64Bit
	}
	if d.Has(DefIsUsage) {
		f |= FlagIsUsage
	}
	if d.Has(DefSigned) {
		f |= FlagSigned
	}
	return f
}

// Registry is the catalogue of attribute definitions. Iteration
// follows registration order, lookups are by name or id.
type Registry struct {
	defs   []*Definition
	byName map[string]*Definition
	byID   map[int]*Definition
	nextID int
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Definition),
		byID:   make(map[int]*Definition),
		nextID: Max + 1,
	}
}

// Define registers a new attribute definition and returns its id. A
// built-in name reuses its fixed id, other names get the next free id
// above Max. Registering a name twice is an error.
func (r *Registry) Define(name, description string, u *unit.Unit, typ Type, flags DefFlag) (int, error) {
	if _, ok := r.byName[name]; ok {
		return Unspec, fmt.Errorf("%w: %q", ErrDuplicateDefinition, name)
	}
	if u == nil {
		return Unspec, fmt.Errorf("%w: attribute %q", ErrUnknownUnit, name)
	}
	if typ == TypeCounter && flags&DefSigned != 0 {
		return Unspec, fmt.Errorf("%w: %q", ErrSignedCounter, name)
	}

	id := builtinID(name)
	if id == Unspec {
		id = r.nextID
		r.nextID++
	}

	def := &Definition{
		id:          id,
		name:        name,
		description: description,
		typ:         typ,
		unit:        u,
		flags:       flags,
	}
	r.defs = append(r.defs, def)
	r.byName[name] = def
	r.byID[id] = def

	if Debug > 0 {
		log.Printf("[DBG] New attribute %s desc=%q unit=%s type=%v", name, description, u.Name(), typ)
	}
	return id, nil
}

// Lookup returns the definition with the given name or nil.
func (r *Registry) Lookup(name string) *Definition { return r.byName[name] }

// LookupID returns the definition with the given id or nil.
func (r *Registry) LookupID(id int) *Definition { return r.byID[id] }

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []*Definition { return r.defs }

// DefineDefaults registers the standard set of network interface
// attributes. Definitions already present (e.g. from a config file)
// are left alone.
func (r *Registry) DefineDefaults(units *unit.Table) error {
	byteUnit, number := units.Lookup("byte"), units.Lookup("number")
	defaults := []struct {
		name, desc string
		u          *unit.Unit
		flags      DefFlag
	}{
		{"bytes", "Bytes", byteUnit, DefHistory},
		{"packets", "Packets", number, DefHistory},
		{"errors", "Errors", number, 0},
		{"drop", "Dropped", number, 0},
		{"fifo", "FIFO Error", number, 0},
		{"frame", "Frame Error", number, 0},
		{"compressed", "Compressed", number, 0},
		{"multicast", "Multicast", number, 0},
		{"overlimits", "Overlimits", number, 0},
		{"collisions", "Collisions", number, 0},
		{"len_err", "Length Error", number, 0},
		{"over_err", "Over Error", number, 0},
		{"crc_err", "CRC Error", number, 0},
		{"missed_err", "Missed Error", number, 0},
		{"abort_err", "Abort Error", number, 0},
		{"hbeat_err", "Heartbeat Error", number, 0},
		{"window_err", "Window Error", number, 0},
		{"carrier_err", "Carrier Error", number, 0},
	}
	for _, d := range defaults {
		if r.Lookup(d.name) != nil {
			continue
		}
		if _, err := r.Define(d.name, d.desc, d.u, TypeCounter, d.flags); err != nil {
			return err
		}
	}

	rates := []struct {
		name, desc string
		u          *unit.Unit
	}{
		{"bps", "Bits/s", units.Lookup("bit")},
		{"pps", "Packets/s", number},
		{"qlen", "Queue Length", number},
		{"backlog", "Backlog", number},
		{"requeues", "Requeues", number},
	}
	for _, d := range rates {
		if r.Lookup(d.name) != nil {
			continue
		}
		if _, err := r.Define(d.name, d.desc, d.u, TypeRate, DefIsRate); err != nil {
			return err
		}
	}
	return nil
}
