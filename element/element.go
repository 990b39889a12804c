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

// Package element keeps track of the monitored elements (network
// interfaces and the like), grouped by kind, each of which owns a
// collection of attributes.
package element

import (
	"log"
	"time"

	"github.com/noushi/bmon/attr"
)

// DefaultGroup is the group interfaces are placed in unless an input
// module is told otherwise.
const DefaultGroup = "intf"

// Config is the configuration of a single element from the config
// file.
type Config struct {
	Name        string
	Description string
	Hide        bool
	RxMax       uint64
	TxMax       uint64
}

// Element is a monitored entity.
type Element struct {
	name        string
	description string
	group       *Group
	hidden      bool

	attrs *attr.Collection
	usage int

	RxMax, TxMax uint64

	info map[string]string

	updated    bool
	lifecycles int
}

func (e *Element) Name() string            { return e.name }
func (e *Element) Description() string     { return e.description }
func (e *Element) Group() *Group           { return e.group }
func (e *Element) Hidden() bool            { return e.hidden }
func (e *Element) Attrs() *attr.Collection { return e.attrs }
func (e *Element) Updated() bool           { return e.updated }
func (e *Element) Lifecycles() int         { return e.lifecycles }

// SetKeyAttrs sets the attributes displayed first and second.
func (e *Element) SetKeyAttrs(reg *attr.Registry, major, minor int) {
	e.attrs.SetKeys(reg.LookupID(major), reg.LookupID(minor))
}

// SetUsageAttr selects the attribute the usage of the element is
// derived from.
func (e *Element) SetUsageAttr(id int) { e.usage = id }

// UsageAttr returns the usage attribute or nil.
func (e *Element) UsageAttr() *attr.Attribute {
	if e.usage == attr.Unspec {
		return nil
	}
	return e.attrs.Lookup(e.usage)
}

// UpdateInfo sets a free form key/value property of the element,
// e.g. its mtu.
func (e *Element) UpdateInfo(key, value string) {
	if e.info == nil {
		e.info = make(map[string]string)
	}
	e.info[key] = value
}

// Info returns the value of a property.
func (e *Element) Info(key string) (string, bool) {
	v, ok := e.info[key]
	return v, ok
}

// InfoKeys returns the property names.
func (e *Element) InfoKeys() []string {
	keys := make([]string, 0, len(e.info))
	for k := range e.info {
		keys = append(keys, k)
	}
	return keys
}

// Group is a named set of elements of the same kind.
type Group struct {
	name     string
	elements []*Element
	byName   map[string]*Element
}

func (g *Group) Name() string { return g.name }

// Elements returns the elements in the order they were created.
func (g *Group) Elements() []*Element { return g.elements }

func (g *Group) remove(el *Element) {
	delete(g.byName, el.name)
	for i, e := range g.elements {
		if e == el {
			g.elements = append(g.elements[:i], g.elements[i+1:]...)
			return
		}
	}
}

// Options are the registry settings.
type Options struct {
	// Lifecycles is the number of read cycles an element survives
	// without being updated.
	Lifecycles int
	Policy     *Policy
	ShowAll    bool
}

// Registry holds all groups and elements as well as the currently
// selected element.
type Registry struct {
	engine  *attr.Engine
	opts    Options
	configs map[string]*Config

	groups  []*Group
	byName  map[string]*Group
	current *Element
}

// NewRegistry returns an empty registry feeding samples into engine.
func NewRegistry(engine *attr.Engine, opts Options) *Registry {
	if opts.Lifecycles <= 0 {
		opts.Lifecycles = 1
	}
	return &Registry{
		engine:  engine,
		opts:    opts,
		configs: make(map[string]*Config),
		byName:  make(map[string]*Group),
	}
}

// Engine returns the attribute engine.
func (r *Registry) Engine() *attr.Engine { return r.engine }

// Configure registers the configuration of an element, which is applied
// when the element is created.
func (r *Registry) Configure(cfg Config) {
	c := cfg
	r.configs[cfg.Name] = &c
}

// Group returns the group with the given name, creating it if
// necessary.
func (r *Registry) Group(name string) *Group {
	if g, ok := r.byName[name]; ok {
		return g
	}
	g := &Group{name: name, byName: make(map[string]*Element)}
	r.groups = append(r.groups, g)
	r.byName[name] = g
	return g
}

// Groups returns all groups in creation order.
func (r *Registry) Groups() []*Group { return r.groups }

// Lookup returns the element with the given name within the group. If
// it does not exist and create is set a new element is created,
// unless the policy rejects the name in which case nil is returned.
func (r *Registry) Lookup(g *Group, name string, create bool) *Element {
	if el, ok := g.byName[name]; ok {
		return el
	}
	if !create || !r.opts.Policy.Allow(name) {
		return nil
	}

	el := &Element{
		name:   name,
		group:  g,
		attrs:  attr.NewCollection(name),
		usage:  attr.Unspec,
		hidden: false,
	}
	if cfg, ok := r.configs[name]; ok {
		el.description = cfg.Description
		el.RxMax, el.TxMax = cfg.RxMax, cfg.TxMax
		el.hidden = cfg.Hide
	}
	if r.opts.ShowAll {
		el.hidden = false
	}
	el.lifecycles = r.opts.Lifecycles

	g.elements = append(g.elements, el)
	g.byName[name] = el

	if attr.Debug > 0 {
		log.Printf("[DBG] New element %s in group %s", name, g.name)
	}
	return el
}

// Elements returns all elements of all groups.
func (r *Registry) Elements() []*Element {
	var list []*Element
	for _, g := range r.groups {
		list = append(list, g.elements...)
	}
	return list
}

// Update stores a raw sample of an attribute of el.
func (r *Registry) Update(el *Element, id int, rx, tx uint64, flags attr.UpdateFlag) {
	r.engine.Update(el.attrs, id, rx, tx, flags)
}

var timeNow = func() time.Time {
	return time.Now()
}

// Notify recalculates all attributes of el. A zero now means the
// current time.
func (r *Registry) Notify(el *Element, now time.Time) {
	if now.IsZero() {
		now = timeNow()
	}
	r.engine.NotifyAll(el.attrs, now)
	el.updated = true
}

// Lifesign keeps el alive for n times the configured lifecycles.
func (r *Registry) Lifesign(el *Element, n int) {
	el.lifecycles = r.opts.Lifecycles * n
}

// ResetUpdateFlags is called at the beginning of every read cycle.
func (r *Registry) ResetUpdateFlags() {
	for _, g := range r.groups {
		for _, el := range g.elements {
			el.updated = false
		}
	}
}

// FreeUnused ages all elements not updated in the current cycle and
// frees those that ran out of lifecycles. It returns the number of
// elements freed.
func (r *Registry) FreeUnused() int {
	freed := 0
	for _, g := range r.groups {
		for _, el := range append([]*Element(nil), g.elements...) {
			if el.updated {
				continue
			}
			el.lifecycles--
			if el.lifecycles <= 0 {
				r.free(el)
				freed++
			}
		}
	}
	return freed
}

func (r *Registry) free(el *Element) {
	if r.current == el {
		r.current = r.neighbour(el)
	}
	el.group.remove(el)
	if attr.Debug > 0 {
		log.Printf("[DBG] Freed element %s of group %s", el.name, el.group.name)
	}
}

// neighbour returns the element following el, or the one preceding
// it if el is the last one, or nil if el is the only element.
func (r *Registry) neighbour(el *Element) *Element {
	list := r.visible()
	for i, e := range list {
		if e != el {
			continue
		}
		if i+1 < len(list) {
			return list[i+1]
		}
		if i > 0 {
			return list[i-1]
		}
	}
	return nil
}

func (r *Registry) visible() []*Element {
	var list []*Element
	for _, g := range r.groups {
		for _, el := range g.elements {
			if !el.hidden {
				list = append(list, el)
			}
		}
	}
	return list
}

// Visible returns all elements not hidden by configuration.
func (r *Registry) Visible() []*Element { return r.visible() }

// Current returns the selected element, selecting the first visible
// one if nothing is selected. Returns nil if there are no elements.
func (r *Registry) Current() *Element {
	if r.current == nil {
		if list := r.visible(); len(list) > 0 {
			r.current = list[0]
		}
	}
	return r.current
}

// SetCurrent selects el.
func (r *Registry) SetCurrent(el *Element) { r.current = el }

// NextElement selects the following visible element, wrapping around.
func (r *Registry) NextElement() *Element { return r.step(1) }

// PrevElement selects the preceding visible element, wrapping around.
func (r *Registry) PrevElement() *Element { return r.step(-1) }

func (r *Registry) step(dir int) *Element {
	list := r.visible()
	if len(list) == 0 {
		r.current = nil
		return nil
	}
	idx := -1
	for i, el := range list {
		if el == r.current {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.current = list[0]
		return r.current
	}
	r.current = list[(idx+dir+len(list))%len(list)]
	return r.current
}

// The attribute selection operations act on the current element and
// return nil if there is none.

func (r *Registry) SelectFirstAttr() *attr.Attribute {
	if el := r.Current(); el != nil {
		return el.attrs.SelectFirst()
	}
	return nil
}

func (r *Registry) SelectLastAttr() *attr.Attribute {
	if el := r.Current(); el != nil {
		return el.attrs.SelectLast()
	}
	return nil
}

func (r *Registry) SelectNextAttr() *attr.Attribute {
	if el := r.Current(); el != nil {
		return el.attrs.SelectNext()
	}
	return nil
}

func (r *Registry) SelectPrevAttr() *attr.Attribute {
	if el := r.Current(); el != nil {
		return el.attrs.SelectPrev()
	}
	return nil
}

func (r *Registry) CurrentAttr() *attr.Attribute {
	if el := r.Current(); el != nil {
		return el.attrs.Current()
	}
	return nil
}
