//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/noushi/bmon/history"
	"github.com/noushi/bmon/misc"
	"github.com/noushi/bmon/unit"
	"gopkg.in/yaml.v3"
)

type Config struct { // Needs to be exported for TOML to work
	ReadInterval    duration `toml:"read-interval" yaml:"read-interval"`
	RateInterval    duration `toml:"rate-interval" yaml:"rate-interval"`
	Variance        float64  `toml:"variance" yaml:"variance"`
	HistoryVariance float64  `toml:"history-variance" yaml:"history-variance"`
	Lifetime        duration `toml:"lifetime" yaml:"lifetime"`
	SleepTime       duration `toml:"sleep-time" yaml:"sleep-time"`
	UnitExp         string   `toml:"unit-exp" yaml:"unit-exp"`
	UseSI           bool     `toml:"use-si" yaml:"use-si"`
	ShowAll         bool     `toml:"show-all" yaml:"show-all"`
	Policy          string   `toml:"policy" yaml:"policy"`
	PidPath         string   `toml:"pid-file" yaml:"pid-file"`
	LogPath         string   `toml:"log-file" yaml:"log-file"`
	LogCycle        duration `toml:"log-cycle-interval" yaml:"log-cycle-interval"`
	Debug           int      `toml:"debug" yaml:"debug"`
	Input           string   `toml:"input" yaml:"input"`
	SecondaryInput  string   `toml:"secondary-input" yaml:"secondary-input"`
	Output          string   `toml:"output" yaml:"output"`
	SecondaryOutput string   `toml:"secondary-output" yaml:"secondary-output"`

	Units    []ConfigUnit    `toml:"unit" yaml:"unit"`
	Attrs    []ConfigAttr    `toml:"attr" yaml:"attr"`
	History  []ConfigHistory `toml:"history" yaml:"history"`
	Elements []ConfigElement `toml:"element" yaml:"element"`

	// Set up by processConfig.
	units    *unit.Table
	defs     *attr.Registry
	store    *history.Store
	policy   *element.Policy
	elements []element.Config
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = misc.ParseInterval(string(text))
	return err
}

// Needs to be exported for TOML
type ConfigUnit struct {
	Name     string          `toml:"name" yaml:"name"`
	Variants []ConfigVariant `toml:"variant" yaml:"variant"`
}

type ConfigVariant struct {
	Name string   `toml:"name" yaml:"name"`
	Div  []uint64 `toml:"div" yaml:"div"`
	Txt  []string `toml:"txt" yaml:"txt"`
}

type ConfigAttr struct {
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`
	Unit        string `toml:"unit" yaml:"unit"`
	Type        string `toml:"type" yaml:"type"`
	History     bool   `toml:"history" yaml:"history"`
}

type ConfigHistory struct {
	Name     string   `toml:"name" yaml:"name"`
	Interval duration `toml:"interval" yaml:"interval"`
	Size     int      `toml:"size" yaml:"size"`
	Type     string   `toml:"type" yaml:"type"`
}

type ConfigElement struct {
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`
	Show        *bool  `toml:"show" yaml:"show"`
	Max         uint64 `toml:"max" yaml:"max"`
	RxMax       uint64 `toml:"rxmax" yaml:"rxmax"`
	TxMax       uint64 `toml:"txmax" yaml:"txmax"`
}

// defaultHistory is used when the configuration defines none.
var defaultHistory = []ConfigHistory{
	{Name: "second", Interval: duration{time.Second}, Size: 60, Type: "64bit"},
	{Name: "minute", Interval: duration{time.Minute}, Size: 60, Type: "64bit"},
	{Name: "hour", Interval: duration{time.Hour}, Size: 60, Type: "64bit"},
	{Name: "day", Interval: duration{24 * time.Hour}, Size: 60, Type: "64bit"},
}

func defaultConfig() *Config {
	return &Config{
		ReadInterval:    duration{time.Second},
		RateInterval:    duration{time.Second},
		Variance:        0.1,
		HistoryVariance: 0.1,
		Lifetime:        duration{30 * time.Second},
		SleepTime:       duration{20 * time.Millisecond},
		UnitExp:         "dynamic",
	}
}

// readConfig reads a TOML file, or a YAML file if the name ends in
// .yaml or .yml, on top of the defaults. An empty path yields the
// defaults.
var readConfig = func(cfgPath string) (*Config, error) {
	cfg := defaultConfig()
	if cfgPath == "" {
		return cfg, nil
	}
	switch strings.ToLower(filepath.Ext(cfgPath)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) processConfigPidFile(wd string) error {
	if c.PidPath == "" {
		return nil
	}
	if !filepath.IsAbs(c.PidPath) {
		if wd == "" {
			return fmt.Errorf("pid-file must be absolute path if working directory cannot be determined")
		}
		c.PidPath = filepath.Join(wd, c.PidPath)
	}
	pidDir, _ := filepath.Split(c.PidPath)
	if err := os.MkdirAll(pidDir, 0755); err != nil {
		return fmt.Errorf("Unable to create directory: '%s' (%v).", pidDir, err)
	}
	return nil
}

func (c *Config) processConfigLogFile(wd string) error {
	if os.Getenv("BMON_LOG") != "" {
		c.LogPath = os.Getenv("BMON_LOG")
	}
	if c.LogPath == "" {
		return nil
	}
	if !filepath.IsAbs(c.LogPath) {
		if wd == "" {
			return fmt.Errorf("log-file must be absolute path if working directory cannot be determined")
		}
		c.LogPath = filepath.Join(wd, c.LogPath)
	}
	logDir, _ := filepath.Split(c.LogPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("Unable to create directory: '%s' (%v).", logDir, err)
	}
	log.Printf("Logs will be written to '%s'.", c.LogPath)
	return nil
}

func (c *Config) processIntervals() error {
	if c.ReadInterval.Duration <= 0 {
		return fmt.Errorf("read-interval must be positive")
	}
	if c.RateInterval.Duration <= 0 {
		return fmt.Errorf("rate-interval must be positive")
	}
	if c.Variance < 0 || c.Variance >= 1 {
		return fmt.Errorf("variance must be within [0, 1)")
	}
	if c.HistoryVariance < 0 || c.HistoryVariance >= 1 {
		return fmt.Errorf("history-variance must be within [0, 1)")
	}
	if c.SleepTime.Duration > c.ReadInterval.Duration {
		log.Printf("sleep-time (%v) exceeds read-interval, using %v.", c.SleepTime.Duration, c.ReadInterval.Duration)
		c.SleepTime.Duration = c.ReadInterval.Duration
	}
	if c.Lifetime.Duration < c.ReadInterval.Duration {
		c.Lifetime.Duration = c.ReadInterval.Duration
	}
	log.Printf("Reading every %v, rates over %v (variance %v).", c.ReadInterval.Duration, c.RateInterval.Duration, c.Variance)
	return nil
}

// lifecycles is the number of read cycles an element survives
// without being updated.
func (c *Config) lifecycles() int {
	return int(c.Lifetime.Duration / c.ReadInterval.Duration)
}

func parseUnitExp(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < unit.DynamicExp || n > 4 {
			return 0, fmt.Errorf("unit-exp %d out of range", n)
		}
		return n, nil
	}
	return unit.ParseExp(s)
}

func (c *Config) processUnits() error {
	exp, err := parseUnitExp(c.UnitExp)
	if err != nil {
		return err
	}
	c.units = unit.NewTable(c.UseSI, exp)
	for _, cu := range c.Units {
		if cu.Name == "" {
			return fmt.Errorf("unit without name")
		}
		u := c.units.Add(cu.Name)
		for _, cv := range cu.Variants {
			v, err := unit.ParseVariant(cv.Name)
			if err != nil {
				return fmt.Errorf("unit %s: %w", cu.Name, err)
			}
			if len(cv.Div) != len(cv.Txt) {
				return fmt.Errorf("unit %s: div and txt must have the same number of entries", cu.Name)
			}
			fl := make([]unit.Fraction, len(cv.Div))
			for i := range cv.Div {
				if cv.Div[i] == 0 || (i > 0 && cv.Div[i] <= cv.Div[i-1]) {
					return fmt.Errorf("unit %s: divisors must be positive and increasing", cu.Name)
				}
				fl[i] = unit.Fraction{Name: cv.Txt[i], Divisor: cv.Div[i]}
			}
			u.SetDivisors(v, fl)
		}
	}
	return nil
}

func (c *Config) processAttrs() error {
	c.defs = attr.NewRegistry()
	for _, ca := range c.Attrs {
		u := c.units.Lookup(ca.Unit)
		if u == nil {
			return fmt.Errorf("attribute %s: %w %q", ca.Name, attr.ErrUnknownUnit, ca.Unit)
		}
		typ, err := attr.ParseType(ca.Type)
		if err != nil {
			return fmt.Errorf("attribute %s: %v", ca.Name, err)
		}
		var flags attr.DefFlag
		if ca.History {
			flags |= attr.DefHistory
		}
		if _, err := c.defs.Define(ca.Name, ca.Description, u, typ, flags); err != nil {
			return err
		}
	}
	return c.defs.DefineDefaults(c.units)
}

func (c *Config) processHistory() error {
	c.store = history.NewStore(c.HistoryVariance)
	defs := c.History
	if len(defs) == 0 {
		defs = defaultHistory
	}
	for _, ch := range defs {
		interval := ch.Interval.Duration
		if interval == 0 {
			interval = c.ReadInterval.Duration
		}
		typ, err := history.ParseType(ch.Type)
		if err != nil {
			return fmt.Errorf("history %s: %v", ch.Name, err)
		}
		size := ch.Size
		if size == 0 {
			size = 60
		}
		if err := c.store.Define(history.Definition{Name: ch.Name, Interval: interval, Size: size, Type: typ}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) processElements() error {
	c.elements = c.elements[:0]
	for _, ce := range c.Elements {
		if ce.Name == "" {
			return fmt.Errorf("element without name")
		}
		ec := element.Config{
			Name:        ce.Name,
			Description: ce.Description,
			Hide:        ce.Show != nil && !*ce.Show,
			RxMax:       ce.RxMax,
			TxMax:       ce.TxMax,
		}
		if ec.RxMax == 0 {
			ec.RxMax = ce.Max
		}
		if ec.TxMax == 0 {
			ec.TxMax = ce.Max
		}
		c.elements = append(c.elements, ec)
	}
	return nil
}

func (c *Config) processPolicy() error {
	if c.Policy == "" {
		return nil
	}
	p, err := element.ParsePolicy(c.Policy)
	if err != nil {
		return err
	}
	c.policy = p
	return nil
}

func (c *Config) processDebug() error {
	if c.Debug < 0 {
		return errors.New("debug level must not be negative")
	}
	attr.Debug = c.Debug
	return nil
}

type configer interface {
	processConfigPidFile(string) error
	processConfigLogFile(string) error
	processIntervals() error
	processUnits() error
	processAttrs() error
	processHistory() error
	processElements() error
	processPolicy() error
	processDebug() error
}

var processConfig = func(c configer, wd string) error {

	if err := c.processConfigPidFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogFile(wd); err != nil {
		return err
	}
	if err := c.processIntervals(); err != nil {
		return err
	}
	if err := c.processUnits(); err != nil {
		return err
	}
	if err := c.processAttrs(); err != nil {
		return err
	}
	if err := c.processHistory(); err != nil {
		return err
	}
	if err := c.processElements(); err != nil {
		return err
	}
	if err := c.processPolicy(); err != nil {
		return err
	}
	if err := c.processDebug(); err != nil {
		return err
	}
	return nil
}
