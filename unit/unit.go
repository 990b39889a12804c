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

// Package unit scales raw values into human readable magnitudes
// (bytes into KiB, MiB and so on).
package unit

import (
	"errors"
	"fmt"
	"strings"
)

// Variant selects one of the two divisor sequences of a Unit.
type Variant int

const (
	Default Variant = iota // binary, e.g. KiB
	SI                     // decimal, e.g. KB
	numVariants
)

// DynamicExp makes the Table pick a divisor based on the magnitude
// of the value being scaled.
const DynamicExp = -1

var ErrUnknownVariant = errors.New("unknown unit variant")

// ParseVariant converts a config section title into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "default":
		return Default, nil
	case "si":
		return SI, nil
	}
	return Default, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// ParseExp converts a unit exponent name (b, k, m, g, t or d for
// dynamic) into an exponent usable with NewTable.
func ParseExp(s string) (int, error) {
	if s == "" {
		return DynamicExp, fmt.Errorf("empty unit exponent")
	}
	switch strings.ToLower(s[:1]) {
	case "b":
		return 0, nil
	case "k":
		return 1, nil
	case "m":
		return 2, nil
	case "g":
		return 3, nil
	case "t":
		return 4, nil
	case "d":
		return DynamicExp, nil
	}
	return DynamicExp, fmt.Errorf("unknown unit exponent %q", s)
}

// Fraction is a divisor along with the text displayed next to a
// value scaled by it.
type Fraction struct {
	Name    string
	Divisor uint64
}

// Unit is a named pair of ordered divisor sequences. Divisors within
// a sequence must be increasing.
type Unit struct {
	name string
	div  [numVariants][]Fraction
}

func (u *Unit) Name() string { return u.name }

// Fractions returns the divisor sequence of the given variant.
func (u *Unit) Fractions(v Variant) []Fraction { return u.div[v] }

// AddDivisor appends a divisor to the variant's sequence.
func (u *Unit) AddDivisor(v Variant, txt string, div uint64) {
	u.div[v] = append(u.div[v], Fraction{Name: txt, Divisor: div})
}

// SetDivisors replaces the whole sequence of a variant.
func (u *Unit) SetDivisors(v Variant, fractions []Fraction) {
	u.div[v] = append([]Fraction(nil), fractions...)
}

// Table is the set of known units along with the display settings
// used to choose a divisor. It is populated at startup and not
// modified afterwards.
type Table struct {
	units  []*Unit
	byName map[string]*Unit
	useSI  bool
	exp    int
}

// NewTable returns a Table containing the built-in byte, bit and
// number units. exp is either DynamicExp or a fixed zero-based index
// into the divisor sequence.
func NewTable(useSI bool, exp int) *Table {
	t := &Table{byName: make(map[string]*Unit), useSI: useSI, exp: exp}
	t.addDefaults()
	return t
}

func (t *Table) addDefaults() {
	b := t.Add("byte")
	for _, f := range []Fraction{{"B", 1}, {"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30}, {"TiB", 1 << 40}} {
		b.AddDivisor(Default, f.Name, f.Divisor)
	}
	for _, f := range []Fraction{{"B", 1}, {"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"TB", 1e12}} {
		b.AddDivisor(SI, f.Name, f.Divisor)
	}

	bit := t.Add("bit")
	for _, f := range []Fraction{{"b", 1}, {"Kib", 1 << 10}, {"Mib", 1 << 20}, {"Gib", 1 << 30}, {"Tib", 1 << 40}} {
		bit.AddDivisor(Default, f.Name, f.Divisor)
	}
	for _, f := range []Fraction{{"b", 1}, {"Kb", 1e3}, {"Mb", 1e6}, {"Gb", 1e9}, {"Tb", 1e12}} {
		bit.AddDivisor(SI, f.Name, f.Divisor)
	}

	n := t.Add("number")
	for _, f := range []Fraction{{"", 1}, {"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12}} {
		n.AddDivisor(Default, f.Name, f.Divisor)
	}
}

// Add returns the unit with the given name, creating an empty one if
// it does not exist yet.
func (t *Table) Add(name string) *Unit {
	if u, ok := t.byName[name]; ok {
		return u
	}
	u := &Unit{name: name}
	t.units = append(t.units, u)
	t.byName[name] = u
	return u
}

// Lookup returns the named unit or nil.
func (t *Table) Lookup(name string) *Unit { return t.byName[name] }

// Units returns all units in the order they were added.
func (t *Table) Units() []*Unit { return t.units }

// UseSI reports whether SI divisors are preferred.
func (t *Table) UseSI() bool { return t.useSI }

// Exp returns the configured exponent.
func (t *Table) Exp() int { return t.exp }

func (t *Table) fractions(u *Unit) []Fraction {
	if t.useSI && len(u.div[SI]) > 0 {
		return u.div[SI]
	}
	return u.div[Default]
}

// Divisor selects the divisor best suited to display value. In
// dynamic mode this is the largest divisor not exceeding value,
// otherwise the fraction at the configured exponent. When nothing
// matches the divisor is 1 with empty text. The suggested precision
// is 2, or 0 if the divisor is 1.
func (t *Table) Divisor(value uint64, u *Unit) (div uint64, name string, prec int) {
	prec = 2
	if u == nil {
		return 1, "", 0
	}
	fl := t.fractions(u)

	var f *Fraction
	if t.exp == DynamicExp {
		for i := len(fl) - 1; i >= 0; i-- {
			if value >= fl[i].Divisor {
				f = &fl[i]
				break
			}
		}
	} else if t.exp >= 0 && t.exp < len(fl) {
		f = &fl[t.exp]
	}

	if f == nil || f.Divisor == 0 {
		return 1, "", prec
	}
	if f.Divisor == 1 {
		prec = 0
	}
	return f.Divisor, f.Name, prec
}

// Value scales value by the divisor chosen by Divisor. The precision
// is forced to 0 if value divides evenly.
func (t *Table) Value(value uint64, u *Unit) (float64, string, int) {
	div, name, prec := t.Divisor(value, u)
	if value%div == 0 {
		prec = 0
	}
	return float64(value) / float64(div), name, prec
}

func (t *Table) format(value uint64, u *Unit) string {
	if u == nil {
		return fmt.Sprintf("%d", value)
	}
	v, name, prec := t.Value(value, u)
	return fmt.Sprintf("%.*f%3s", prec, v, name)
}

// Bytes2Str formats a number of bytes, e.g. "1.50MiB".
func (t *Table) Bytes2Str(bytes uint64) string { return t.format(bytes, t.Lookup("byte")) }

// Bits2Str formats a number of bits.
func (t *Table) Bits2Str(bits uint64) string { return t.format(bits, t.Lookup("bit")) }
