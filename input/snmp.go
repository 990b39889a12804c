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
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
)

const (
	oidIfDescr     = ".1.3.6.1.2.1.2.2.1.2"
	oidIfHighSpeed = ".1.3.6.1.2.1.31.1.1.1.15"
)

type ifColumn struct {
	oid string
	id  int
	tx  bool
}

// IF-MIB columns walked per read. The 64-bit ifX counters require v2c.
var (
	ifColumnsV2 = []ifColumn{
		{".1.3.6.1.2.1.31.1.1.1.6", attr.Bytes, false},
		{".1.3.6.1.2.1.31.1.1.1.10", attr.Bytes, true},
		{".1.3.6.1.2.1.31.1.1.1.7", attr.Packets, false},
		{".1.3.6.1.2.1.31.1.1.1.11", attr.Packets, true},
	}
	ifColumnsV1 = []ifColumn{
		{".1.3.6.1.2.1.2.2.1.10", attr.Bytes, false},
		{".1.3.6.1.2.1.2.2.1.16", attr.Bytes, true},
		{".1.3.6.1.2.1.2.2.1.11", attr.Packets, false},
		{".1.3.6.1.2.1.2.2.1.17", attr.Packets, true},
	}
	ifColumnsErr = []ifColumn{
		{".1.3.6.1.2.1.2.2.1.14", attr.Errors, false},
		{".1.3.6.1.2.1.2.2.1.20", attr.Errors, true},
		{".1.3.6.1.2.1.2.2.1.13", attr.Drop, false},
		{".1.3.6.1.2.1.2.2.1.19", attr.Drop, true},
	}
)

var snmpWalk = func(g *gosnmp.GoSNMP, root string) ([]gosnmp.SnmpPDU, error) {
	if g.Version == gosnmp.Version1 {
		return g.WalkAll(root)
	}
	return g.BulkWalkAll(root)
}

// SNMP reads interface counters of a remote agent.
//
// Options:
//
//	host=ADDR       agent address (required)
//	port=NUM        agent port (default: 161)
//	community=STR   community string (default: public)
//	version=1|2c    protocol version (default: 2c)
//	timeout=DUR     request timeout (default: 2s)
//	retries=NUM     request retries (default: 1)
//	group=NAME      element group (default: intf)
type SNMP struct {
	base
	host      string
	port      uint16
	community string
	version   gosnmp.SnmpVersion
	timeout   time.Duration
	retries   int

	conn *gosnmp.GoSNMP
}

func NewSNMP(reg *element.Registry) *SNMP {
	return &SNMP{
		base:      base{reg: reg, group: element.DefaultGroup},
		port:      161,
		community: "public",
		version:   gosnmp.Version2c,
		timeout:   2 * time.Second,
		retries:   1,
	}
}

func (s *SNMP) Name() string  { return "snmp" }
func (s *SNMP) Primary() bool { return true }

func (s *SNMP) ParseOption(key, value string) error {
	switch strings.ToLower(key) {
	case "host":
		s.host = value
	case "port":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port %q", value)
		}
		s.port = uint16(n)
	case "community":
		s.community = value
	case "version":
		switch strings.ToLower(value) {
		case "1":
			s.version = gosnmp.Version1
		case "2", "2c":
			s.version = gosnmp.Version2c
		default:
			return fmt.Errorf("unsupported version %q", value)
		}
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout %q", value)
		}
		s.timeout = d
	case "retries":
		n, err := parseInt(key, value)
		if err != nil {
			return err
		}
		s.retries = n
	case "group":
		if value == "" {
			return fmt.Errorf("group requires a name")
		}
		s.group = value
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

// Probe only checks the configuration, the agent is contacted on
// the first read.
func (s *SNMP) Probe() bool {
	if s.host == "" {
		log.Printf("snmp: no host given")
		return false
	}
	return true
}

func (s *SNMP) Init() error {
	s.conn = &gosnmp.GoSNMP{
		Target:    s.host,
		Port:      s.port,
		Community: s.community,
		Version:   s.version,
		Timeout:   s.timeout,
		Retries:   s.retries,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := s.conn.Connect(); err != nil {
		return fmt.Errorf("connect %s: %v", s.host, err)
	}
	return nil
}

func (s *SNMP) Shutdown() error {
	if s.conn != nil && s.conn.Conn != nil {
		return s.conn.Conn.Close()
	}
	return nil
}

type ifRow struct {
	index string
	name  string
	speed uint64
	vals  map[int]*[2]uint64
}

func (s *SNMP) walk(root string, fn func(index string, pdu gosnmp.SnmpPDU)) error {
	pdus, err := snmpWalk(s.conn, root)
	if err != nil {
		return fmt.Errorf("walk %s: %v", root, err)
	}
	prefix := root + "."
	for _, pdu := range pdus {
		if !strings.HasPrefix(pdu.Name, prefix) {
			continue
		}
		fn(strings.TrimPrefix(pdu.Name, prefix), pdu)
	}
	return nil
}

func (s *SNMP) Read(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("not initialized")
	}

	var rows []*ifRow
	byIndex := make(map[string]*ifRow)
	err := s.walk(oidIfDescr, func(index string, pdu gosnmp.SnmpPDU) {
		name := ""
		if b, ok := pdu.Value.([]byte); ok {
			name = string(b)
		} else if str, ok := pdu.Value.(string); ok {
			name = str
		}
		if name == "" {
			name = "if" + index
		}
		r := &ifRow{index: index, name: name, vals: make(map[int]*[2]uint64)}
		rows = append(rows, r)
		byIndex[index] = r
	})
	if err != nil {
		return err
	}

	cols := ifColumnsV1
	if s.version != gosnmp.Version1 {
		cols = ifColumnsV2
	}
	cols = append(append([]ifColumn(nil), cols...), ifColumnsErr...)
	for _, col := range cols {
		col := col
		err := s.walk(col.oid, func(index string, pdu gosnmp.SnmpPDU) {
			r, ok := byIndex[index]
			if !ok {
				return
			}
			v, ok := r.vals[col.id]
			if !ok {
				v = new([2]uint64)
				r.vals[col.id] = v
			}
			dir := 0
			if col.tx {
				dir = 1
			}
			v[dir] = gosnmp.ToBigInt(pdu.Value).Uint64()
		})
		if err != nil {
			return err
		}
	}

	if s.version != gosnmp.Version1 {
		err := s.walk(oidIfHighSpeed, func(index string, pdu gosnmp.SnmpPDU) {
			if r, ok := byIndex[index]; ok {
				r.speed = gosnmp.ToBigInt(pdu.Value).Uint64()
			}
		})
		if err != nil {
			log.Printf("snmp: %v", err)
		}
	}

	now := time.Now()
	for _, r := range rows {
		el := s.lookup(r.name)
		if el == nil {
			continue
		}
		for _, id := range []int{attr.Bytes, attr.Packets, attr.Errors, attr.Drop} {
			v, ok := r.vals[id]
			if !ok {
				continue
			}
			flags := attr.UpdateRx | attr.UpdateTx
			if s.version != gosnmp.Version1 && (id == attr.Bytes || id == attr.Packets) {
				flags |= attr.Update64Bit
			}
			s.reg.Update(el, id, v[0], v[1], flags)
		}
		if r.speed > 0 {
			// ifHighSpeed is in Mbit/s
			bps := r.speed * 1000000 / 8
			if el.RxMax == 0 {
				el.RxMax = bps
			}
			if el.TxMax == 0 {
				el.TxMax = bps
			}
		}
		el.UpdateInfo("ifindex", r.index)

		s.reg.Notify(el, now)
		s.reg.Lifesign(el, 1)
	}
	return nil
}
