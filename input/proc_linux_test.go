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

//go:build linux

package input

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
)

const netDev = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:    4242      42    0    0    0     0          0         0     4242      42    0    0    0     0       0          0
  eth0: 1234567    1000    1    2    0     0          0         0   765432     900    0    0    0     0       0          0
`

func TestProc_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev")
	if err := os.WriteFile(path, []byte(netDev), 0644); err != nil {
		t.Fatal(err)
	}
	reg := testRegistry(t, element.Options{Lifecycles: 1})
	p := NewProc(reg)
	p.ParseOption("file", path)
	if !p.Probe() {
		t.Fatalf("Probe failed")
	}
	if err := p.Read(context.Background()); err != nil {
		t.Fatal(err)
	}
	el := reg.Lookup(reg.Group(element.DefaultGroup), "eth0", false)
	if el == nil {
		t.Fatalf("eth0 missing")
	}
	b := el.Attrs().Lookup(attr.Bytes)
	if b.Rx.Current != 1234567 || b.Tx.Current != 765432 {
		t.Errorf("bytes = %d/%d", b.Rx.Current, b.Tx.Current)
	}
	if pk := el.Attrs().Lookup(attr.Packets); pk.Rx.Current != 1000 || pk.Tx.Current != 900 {
		t.Errorf("packets = %d/%d", pk.Rx.Current, pk.Tx.Current)
	}
}
