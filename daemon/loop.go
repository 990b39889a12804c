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

package daemon

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/input"
	"github.com/noushi/bmon/output"
)

// Loop runs the read cycles. A cycle resets the update flags of all
// elements, reads all inputs, frees the elements not updated for too
// long and lets all outputs draw.
//
//	NR := next read, E := now, RI := read interval
//
// A cycle runs as soon as NR <= E, after which NR := E + RI + (NR - E).
// In between the loop sleeps for the sleep time, or less if NR is
// closer than that.
type Loop struct {
	reg          *element.Registry
	inputs       *input.Subsys
	outputs      *output.Subsys
	readInterval time.Duration
	sleepTime    time.Duration

	next   time.Time
	cycles int
}

func newLoop(reg *element.Registry, inputs *input.Subsys, outputs *output.Subsys, readInterval, sleepTime time.Duration) *Loop {
	if sleepTime > readInterval {
		sleepTime = readInterval
	}
	return &Loop{
		reg:          reg,
		inputs:       inputs,
		outputs:      outputs,
		readInterval: readInterval,
		sleepTime:    sleepTime,
	}
}

// Cycles returns the number of cycles run so far.
func (l *Loop) Cycles() int { return l.cycles }

// cycle runs to completion even if ctx is cancelled meanwhile, the
// caller checks for cancellation between cycles.
func (l *Loop) cycle(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	l.cycles++
	l.reg.ResetUpdateFlags()
	if err := input.Read(ctx, l.inputs); err != nil {
		log.Printf("%v", err)
	}
	if n := l.reg.FreeUnused(); n > 0 && attr.Debug > 0 {
		log.Printf("[DBG] Freed %d unused elements", n)
	}
	return output.Draw(ctx, l.outputs)
}

// Step runs a cycle if one is due at now and returns the time to
// sleep before the next call. Only output errors, including
// output.ErrQuit, are returned, input errors are logged.
func (l *Loop) Step(ctx context.Context, now time.Time) (time.Duration, error) {
	if l.next.IsZero() {
		l.next = now
	}

	var err error
	if !l.next.After(now) {
		c := l.next.Sub(now)
		l.next = now.Add(l.readInterval + c)
		err = l.cycle(ctx)
	}

	st := l.sleepTime
	if d := l.next.Sub(now); d < st {
		if d < 0 {
			d = 0
		}
		st = d
	}
	return st, err
}

// Run steps until ctx is done or an output asks to quit. A running
// cycle is always completed. If the primary output drives the loop
// itself it is handed over to it.
func (l *Loop) Run(ctx context.Context) error {
	if p, ok := l.outputs.Primary(); ok {
		if d, ok := p.(output.Driver); ok {
			return d.Run(ctx, l)
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		st, err := l.Step(ctx, timeNow())
		if errors.Is(err, output.ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		timer.Reset(st)
	}
}
