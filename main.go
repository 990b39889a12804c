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

// Bmon is a bandwidth monitor: it reads interface counters from a
// number of sources, derives rates from them and reports them through
// a number of outputs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/noushi/bmon/daemon"
)

var (
	buildTime, gitRevision string
)

func parseFlags() (opts daemon.Options, version bool) {

	// Parse the flags, if any
	flag.StringVar(&opts.ConfigPath, "c", "", "path to config file (TOML, or YAML if ending in .yaml)")
	flag.StringVar(&opts.Input, "i", "", "primary input module, \"list\" to show all")
	flag.StringVar(&opts.SecondaryInput, "I", "", "secondary input modules")
	flag.StringVar(&opts.Output, "o", "", "primary output module, \"list\" to show all")
	flag.StringVar(&opts.SecondaryOutput, "O", "", "secondary output modules")
	flag.StringVar(&opts.ReadInterval, "r", "", "read interval")
	flag.StringVar(&opts.RateInterval, "R", "", "rate interval")
	flag.StringVar(&opts.SleepTime, "s", "", "sleep time")
	flag.StringVar(&opts.Policy, "p", "", "interface policy, e.g. \"eth*,!eth1\"")
	flag.BoolVar(&opts.ShowAll, "a", false, "show all elements, including hidden ones")
	flag.BoolVar(&opts.UseSI, "U", false, "use SI units")
	flag.StringVar(&opts.UnitExp, "e", "", "unit exponent: b, k, m, g, t or d(ynamic)")
	flag.StringVar(&opts.PidPath, "P", "", "path to pid file")
	flag.IntVar(&opts.Debug, "d", 0, "debug level")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Parse()

	return
}

func printVersion() {
	fmt.Printf("bmon version: %v\n", Version)
	if buildTime != "" {
		fmt.Printf("Build time: %v\n", buildTime)
	}
	if gitRevision != "" {
		fmt.Printf("Git revision: %v\n", gitRevision)
	}

}

func main() {

	opts, version := parseFlags()

	if version {
		printVersion()
		return
	}

	listed := false
	for _, m := range []struct{ which, param string }{{"input", opts.Input}, {"output", opts.Output}} {
		if m.param == "list" {
			l, _ := daemon.ListModules(m.which)
			fmt.Print(l)
			listed = true
		}
	}
	if listed {
		return
	}

	if d := daemon.Init(opts); d != nil {
		if err := d.Run(); err != nil {
			daemon.Finish(d)
			os.Exit(1)
		}
		daemon.Finish(d)
	}
}
