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
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
)

const maxDummyDevs = 32

// Dummy generates constant or random traffic for a number of fake
// devices spread over a number of groups.
//
// Options:
//
//	rxb=NUM        RX bytes increment (default: 10^9)
//	txb=NUM        TX bytes increment (default: 8*10^7)
//	rxp=NUM        RX packets increment (default: 1000)
//	txp=NUM        TX packets increment (default: 800)
//	num=NUM        number of devices (default: 5)
//	numgroups=NUM  number of groups (default: 2)
//	randomize      randomize counters
//	seed=NUM       randomizer seed (default: current time)
//	mtu=NUM        maximum transmission unit (default: 1540)
//	maxpps=NUM     upper limit for packets per read (default: 100000)
//
// When randomized, packets are rand() % maxpps and bytes are
// packets * (rand() % mtu).
type Dummy struct {
	reg *element.Registry

	rxb, txb, rxp, txp uint64
	num, numGroups     int
	randomize          bool
	seed               int64
	mtu, maxPPS        int

	rnd *rand.Rand
	// [group][dev][packets, bytes][rx, tx]
	cnts [][][2][2]uint64
}

func NewDummy(reg *element.Registry) *Dummy {
	return &Dummy{
		reg:       reg,
		rxb:       1000000000,
		txb:       80000000,
		rxp:       1000,
		txp:       800,
		num:       5,
		numGroups: 2,
		seed:      time.Now().UnixNano(),
		mtu:       1540,
		maxPPS:    100000,
	}
}

func (d *Dummy) Name() string    { return "dummy" }
func (d *Dummy) Primary() bool   { return true }
func (d *Dummy) NoDefault() bool { return true }

func (d *Dummy) ParseOption(key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "rxb":
		d.rxb, err = parseUint(key, value)
	case "txb":
		d.txb, err = parseUint(key, value)
	case "rxp":
		d.rxp, err = parseUint(key, value)
	case "txp":
		d.txp, err = parseUint(key, value)
	case "num":
		d.num, err = parseInt(key, value)
	case "numgroups":
		d.numGroups, err = parseInt(key, value)
	case "randomize":
		d.randomize = true
	case "seed":
		d.seed, err = strconv.ParseInt(value, 0, 64)
	case "mtu":
		d.mtu, err = parseInt(key, value)
	case "maxpps":
		d.maxPPS, err = parseInt(key, value)
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return err
}

func (d *Dummy) Probe() bool {
	if d.num < 0 || d.num >= maxDummyDevs {
		log.Printf("dummy: num must be in range 0..%d", maxDummyDevs-1)
		return false
	}
	if d.numGroups < 0 || d.mtu <= 0 || d.maxPPS <= 0 {
		log.Printf("dummy: numgroups, mtu and maxpps must be positive")
		return false
	}
	return true
}

func (d *Dummy) Init() error {
	d.rnd = rand.New(rand.NewSource(d.seed))
	d.cnts = make([][][2][2]uint64, d.numGroups)
	for i := range d.cnts {
		d.cnts[i] = make([][2][2]uint64, d.num)
	}
	return nil
}

func (d *Dummy) Shutdown() error { return nil }

func groupName(i int) string { return fmt.Sprintf("group%02d", i) }

func (d *Dummy) Read(ctx context.Context) error {
	for gi := 0; gi < d.numGroups; gi++ {
		g := d.reg.Group(groupName(gi))
		for n := 0; n < d.num; n++ {
			el := lookupElement(d.reg, g, fmt.Sprintf("dummy%d", n))
			if el == nil || el.Updated() {
				continue
			}

			c := &d.cnts[gi][n]
			if d.randomize {
				rx := uint64(d.rnd.Intn(d.maxPPS))
				tx := uint64(d.rnd.Intn(d.maxPPS))
				c[0][0] += rx
				c[0][1] += tx
				c[1][0] += rx * uint64(d.rnd.Intn(d.mtu))
				c[1][1] += tx * uint64(d.rnd.Intn(d.mtu))
			} else {
				c[0][0] += d.rxp
				c[0][1] += d.txp
				c[1][0] += d.rxb
				c[1][1] += d.txb
			}

			flags := attr.UpdateRx | attr.UpdateTx | attr.Update64Bit
			d.reg.Update(el, attr.Packets, c[0][0], c[0][1], flags)
			d.reg.Update(el, attr.Bytes, c[1][0], c[1][1], flags)
			el.UpdateInfo("mtu", strconv.Itoa(d.mtu))

			d.reg.Notify(el, time.Time{})
			d.reg.Lifesign(el, 1)
		}
	}
	return nil
}
