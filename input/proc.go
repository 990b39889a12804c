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

package input

import (
	"context"
	"fmt"
	"log"
	"math/bits"
	"strings"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
)

const defaultProcFile = "/proc/net/dev"

// Proc reads per interface counters of the local system.
//
// Options:
//
//	file=PATH   statistics file (default: /proc/net/dev, Linux only)
//	group=NAME  element group (default: intf)
type Proc struct {
	base
	file string
}

func NewProc(reg *element.Registry) *Proc {
	return &Proc{
		base: base{reg: reg, group: element.DefaultGroup},
		file: defaultProcFile,
	}
}

func (p *Proc) Name() string  { return "proc" }
func (p *Proc) Primary() bool { return true }

func (p *Proc) ParseOption(key, value string) error {
	switch strings.ToLower(key) {
	case "file":
		if value == "" {
			return fmt.Errorf("file requires a path")
		}
		p.file = value
	case "group":
		if value == "" {
			return fmt.Errorf("group requires a name")
		}
		p.group = value
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func (p *Proc) Probe() bool {
	if _, err := ioCounters(context.Background(), p.file); err != nil {
		log.Printf("proc: %v", err)
		return false
	}
	return true
}

func (p *Proc) Init() error     { return nil }
func (p *Proc) Shutdown() error { return nil }

func (p *Proc) Read(ctx context.Context) error {
	stats, err := ioCounters(ctx, p.file)
	if err != nil {
		return err
	}
	now := time.Now()
	// the kernel counters are unsigned longs
	flags := attr.UpdateRx | attr.UpdateTx
	if bits.UintSize == 64 {
		flags |= attr.Update64Bit
	}
	for _, s := range stats {
		el := p.lookup(s.Name)
		if el == nil {
			continue
		}
		p.reg.Update(el, attr.Bytes, s.BytesRecv, s.BytesSent, flags)
		p.reg.Update(el, attr.Packets, s.PacketsRecv, s.PacketsSent, flags)
		p.reg.Update(el, attr.Errors, s.Errin, s.Errout, flags)
		p.reg.Update(el, attr.Drop, s.Dropin, s.Dropout, flags)
		p.reg.Update(el, attr.Fifo, s.Fifoin, s.Fifoout, flags)

		p.reg.Notify(el, now)
		p.reg.Lifesign(el, 1)
	}
	return nil
}
