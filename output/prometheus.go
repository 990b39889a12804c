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
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/noushi/bmon/attr"
	"github.com/noushi/bmon/element"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attrLabels  = []string{"group", "element", "attribute", "direction"}
	usageLabels = []string{"group", "element", "direction"}

	rateDesc  = prometheus.NewDesc("bmon_attr_rate", "Rate per second of an attribute.", attrLabels, nil)
	totalDesc = prometheus.NewDesc("bmon_attr_total", "Total of an attribute with counter overflows accumulated.", attrLabels, nil)
	usageDesc = prometheus.NewDesc("bmon_attr_usage_percent", "Usage of the element capacity in percent.", usageLabels, nil)
)

type promSample struct {
	desc   *prometheus.Desc
	typ    prometheus.ValueType
	value  float64
	labels []string
}

// Prometheus exposes the state of the last cycle at an HTTP endpoint.
//
// Options:
//
//	listen=ADDR  listen address (default: :9090)
//	path=PATH    metrics path (default: /metrics)
type Prometheus struct {
	reg    *element.Registry
	listen string
	path   string

	mu       sync.Mutex
	snapshot []promSample

	registry *prometheus.Registry
	srv      *http.Server
}

func NewPrometheus(reg *element.Registry) *Prometheus {
	return &Prometheus{reg: reg, listen: ":9090", path: "/metrics"}
}

func (p *Prometheus) Name() string  { return "prometheus" }
func (p *Prometheus) Primary() bool { return false }
func (p *Prometheus) Probe() bool   { return p.listen != "" }

func (p *Prometheus) ParseOption(key, value string) error {
	switch strings.ToLower(key) {
	case "listen":
		p.listen = value
	case "path":
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("path must start with /")
		}
		p.path = value
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func (p *Prometheus) Init() error {
	p.registry = prometheus.NewRegistry()
	if err := p.registry.Register(p); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.listen)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(p.path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("prometheus: %v", err)
		}
	}()
	log.Printf("prometheus: serving %s%s", ln.Addr(), p.path)
	return nil
}

func (p *Prometheus) Shutdown() error {
	if p.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

// Draw takes a snapshot of all attributes. Collect runs on the HTTP
// server goroutines and only ever sees snapshots.
func (p *Prometheus) Draw(ctx context.Context) error {
	var snap []promSample
	e := p.reg.Engine()
	for _, g := range p.reg.Groups() {
		for _, el := range g.Elements() {
			el.Attrs().Each(func(a *attr.Attribute) {
				name := a.Def().Name()
				if a.Has(attr.FlagRxEnabled) {
					snap = append(snap,
						promSample{rateDesc, prometheus.GaugeValue, a.Rx.Rate, []string{g.Name(), el.Name(), name, "rx"}},
						promSample{totalDesc, prometheus.CounterValue, float64(a.Rx.Total), []string{g.Name(), el.Name(), name, "rx"}})
				}
				if a.Has(attr.FlagTxEnabled) {
					snap = append(snap,
						promSample{rateDesc, prometheus.GaugeValue, a.Tx.Rate, []string{g.Name(), el.Name(), name, "tx"}},
						promSample{totalDesc, prometheus.CounterValue, float64(a.Tx.Total), []string{g.Name(), el.Name(), name, "tx"}})
				}
			})
			if u := el.UsageAttr(); u != nil && (el.RxMax > 0 || el.TxMax > 0) {
				rx, tx := e.CalcUsage(u, el.RxMax, el.TxMax)
				if el.RxMax > 0 {
					snap = append(snap, promSample{usageDesc, prometheus.GaugeValue, rx, []string{g.Name(), el.Name(), "rx"}})
				}
				if el.TxMax > 0 {
					snap = append(snap, promSample{usageDesc, prometheus.GaugeValue, tx, []string{g.Name(), el.Name(), "tx"}})
				}
			}
		}
	}

	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()
	return nil
}

func (p *Prometheus) Describe(ch chan<- *prometheus.Desc) {
	ch <- rateDesc
	ch <- totalDesc
	ch <- usageDesc
}

func (p *Prometheus) Collect(ch chan<- prometheus.Metric) {
	p.mu.Lock()
	snap := p.snapshot
	p.mu.Unlock()
	for _, s := range snap {
		ch <- prometheus.MustNewConstMetric(s.desc, s.typ, s.value, s.labels...)
	}
}
