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

package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/noushi/bmon/element"
)

// ASCII prints the rates of all visible elements after every cycle.
//
// Options:
//
//	noheader     omit the column header
//	quitafter=N  terminate after N cycles
type ASCII struct {
	reg       *element.Registry
	out       io.Writer
	noHeader  bool
	quitAfter int
	drawn     int
}

func NewASCII(reg *element.Registry) *ASCII {
	return &ASCII{reg: reg, out: os.Stdout}
}

func (a *ASCII) Name() string  { return "ascii" }
func (a *ASCII) Primary() bool { return true }
func (a *ASCII) Probe() bool   { return true }

func (a *ASCII) ParseOption(key, value string) error {
	switch strings.ToLower(key) {
	case "noheader":
		a.noHeader = true
	case "quitafter":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value for quitafter: %q", value)
		}
		a.quitAfter = n
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func (a *ASCII) Init() error     { return nil }
func (a *ASCII) Shutdown() error { return nil }

const asciiFormat = "%-16s %12s %10s %12s %10s\n"

func (a *ASCII) Draw(ctx context.Context) error {
	var b strings.Builder
	if !a.noHeader {
		fmt.Fprintf(&b, asciiFormat, "Interfaces", "RX Rate", "pps", "TX Rate", "pps")
	}
	e := a.reg.Engine()
	for _, el := range a.reg.Visible() {
		major, minor := keyAttrs(el)
		rxb, txb := rates(e, major)
		rxp, txp := rates(e, minor)
		fmt.Fprintf(&b, asciiFormat, el.Name(), rxb, rxp, txb, txp)
	}
	if _, err := io.WriteString(a.out, b.String()); err != nil {
		return err
	}

	a.drawn++
	if a.quitAfter > 0 && a.drawn >= a.quitAfter {
		return ErrQuit
	}
	return nil
}
