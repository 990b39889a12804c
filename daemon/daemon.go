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

// Package daemon ties bmon together: it reads the configuration, sets
// up the attribute engine, the element registry and the input and
// output modules and runs the read loop until told to stop.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/input"
	"github.com/noushi/bmon/output"
)

// Options are the command line settings. Empty or false values leave
// the configuration file setting alone.
type Options struct {
	ConfigPath      string
	Input           string
	SecondaryInput  string
	Output          string
	SecondaryOutput string
	ReadInterval    string
	RateInterval    string
	SleepTime       string
	Policy          string
	UnitExp         string
	PidPath         string
	ShowAll         bool
	UseSI           bool
	Debug           int
}

func (o *Options) apply(c *Config) error {
	for _, s := range []struct {
		name string
		val  string
		dst  *duration
	}{
		{"read interval", o.ReadInterval, &c.ReadInterval},
		{"rate interval", o.RateInterval, &c.RateInterval},
		{"sleep time", o.SleepTime, &c.SleepTime},
	} {
		if s.val == "" {
			continue
		}
		if err := s.dst.UnmarshalText([]byte(s.val)); err != nil {
			return fmt.Errorf("invalid %s %q: %v", s.name, s.val, err)
		}
	}
	for _, s := range []struct {
		val string
		dst *string
	}{
		{o.Input, &c.Input},
		{o.SecondaryInput, &c.SecondaryInput},
		{o.Output, &c.Output},
		{o.SecondaryOutput, &c.SecondaryOutput},
		{o.Policy, &c.Policy},
		{o.UnitExp, &c.UnitExp},
		{o.PidPath, &c.PidPath},
	} {
		if s.val != "" {
			*s.dst = s.val
		}
	}
	if o.ShowAll {
		c.ShowAll = true
	}
	if o.UseSI {
		c.UseSI = true
	}
	if o.Debug > c.Debug {
		c.Debug = o.Debug
	}
	return nil
}

// ListModules returns a description of the input or output modules
// if which is "input" or "output" respectively.
func ListModules(which string) (string, bool) {
	switch which {
	case "input":
		return input.NewSubsys(nil).List(), true
	case "output":
		return output.NewSubsys(nil).List(), true
	}
	return "", false
}

// Daemon is a set up bmon instance.
type Daemon struct {
	cfg     *Config
	reg     *element.Registry
	inputs  *input.Subsys
	outputs *output.Subsys
	loop    *Loop

	ctx         context.Context
	cancel      context.CancelFunc
	stopSignals func()
}

var getCwd = func() (string, error) {
	return os.Getwd()
}

var savePid = func(pidPath string) error {
	f, err := os.Create(pidPath)
	if err != nil {
		return fmt.Errorf("Unable to create pid file '%s': (%v)", pidPath, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
	log.Printf("Pid saved in %s.", pidPath)
	return nil
}

// subsys is what the input and output subsystems have in common.
type subsys interface {
	SetPrimary(param string) error
	AddSecondary(param string) error
	FindPrimary(defaults ...string) error
	Init() error
}

func setupSubsys(s subsys, primary, secondary string, defaults []string) error {
	if primary != "" {
		if err := s.SetPrimary(primary); err != nil {
			return err
		}
	}
	if secondary != "" {
		if err := s.AddSecondary(secondary); err != nil {
			return err
		}
	}
	if err := s.FindPrimary(defaults...); err != nil {
		return err
	}
	return s.Init()
}

func setup(ctx context.Context, opts Options) (*Daemon, error) {
	cfg, err := readConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("Error reading config file %s: %v", opts.ConfigPath, err)
	}
	if err := opts.apply(cfg); err != nil {
		return nil, err
	}

	wd, err := getCwd()
	if err != nil {
		log.Printf("Unable to determine working directory: %v", err)
	}
	if err := processConfig(configer(cfg), wd); err != nil {
		return nil, fmt.Errorf("Error in config file %s: %v", opts.ConfigPath, err)
	}

	d := &Daemon{cfg: cfg}
	d.ctx, d.cancel = context.WithCancel(ctx)

	if cfg.LogPath != "" {
		if err := logFileCycler(d.ctx, cfg.LogPath, cfg.LogCycle.Duration); err != nil {
			d.cancel()
			return nil, err
		}
	}

	engine := attr.NewEngine(attr.Config{
		RateInterval: cfg.RateInterval.Duration,
		Variance:     cfg.Variance,
	}, cfg.defs, cfg.units, cfg.store)
	d.reg = element.NewRegistry(engine, element.Options{
		Lifecycles: cfg.lifecycles(),
		Policy:     cfg.policy,
		ShowAll:    cfg.ShowAll,
	})
	for _, ec := range cfg.elements {
		d.reg.Configure(ec)
	}

	d.inputs = input.NewSubsys(d.reg)
	if err := setupSubsys(d.inputs, cfg.Input, cfg.SecondaryInput, input.DefaultPrimary); err != nil {
		d.cancel()
		return nil, err
	}
	d.outputs = output.NewSubsys(d.reg)
	if err := setupSubsys(d.outputs, cfg.Output, cfg.SecondaryOutput, output.DefaultPrimary); err != nil {
		d.inputs.Shutdown()
		d.cancel()
		return nil, err
	}

	if cfg.PidPath != "" {
		if err := savePid(cfg.PidPath); err != nil {
			d.shutdown()
			return nil, err
		}
	}

	d.loop = newLoop(d.reg, d.inputs, d.outputs, cfg.ReadInterval.Duration, cfg.SleepTime.Duration)
	return d, nil
}

// Init sets bmon up according to opts. SIGINT and SIGTERM stop the
// read loop once the current cycle is done.
func Init(opts Options) *Daemon { // not to be confused with init()
	log.Printf("bmon starting.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	d, err := setup(ctx, opts)
	if err != nil {
		stop()
		log.Fatalf("%v", err)
	}
	d.stopSignals = stop
	return d
}

// Run runs the read loop until a signal arrives or an output module
// asks to quit.
func (d *Daemon) Run() error {
	in, _ := d.inputs.Primary()
	out, _ := d.outputs.Primary()
	log.Printf("Reading from %s, output to %s.", in.Name(), out.Name())
	if err := d.loop.Run(d.ctx); err != nil {
		log.Printf("Read loop stopped: %v", err)
		return err
	}
	return nil
}

func (d *Daemon) shutdown() {
	d.cancel()
	d.outputs.Shutdown()
	d.inputs.Shutdown()
}

// Finish shuts all modules down and cleans up.
func Finish(d *Daemon) {
	d.shutdown()
	if d.stopSignals != nil {
		d.stopSignals()
	}
	log.Printf("bmon exiting after %d read cycles.", d.loop.Cycles())
	closeLog()
	if d.cfg.PidPath != "" {
		os.Remove(d.cfg.PidPath)
	}
}
