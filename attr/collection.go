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

package attr

import "strings"

const hashSize = 32

// handle is the index of an attribute within the arena of a
// Collection. The zero value refers to no attribute.
type handle int

const none handle = 0

// Collection is the set of attributes owned by one element. Attributes
// live in an arena addressed by handle. A hash index keyed by
// attribute id and a sorted doubly linked list both refer to arena
// slots, never to each other.
type Collection struct {
	name string

	// arena[0] is never used so that handle 0 means none.
	arena []*Attribute
	free  []handle

	buckets [hashSize][]handle

	head, tail handle
	count      int
	current    handle

	// keys[0] is the major, keys[1] the minor key attribute.
	keys [2]*Definition
}

// NewCollection returns an empty collection. name is only used for
// logging.
func NewCollection(name string) *Collection {
	return &Collection{name: name, arena: make([]*Attribute, 1, 8)}
}

// SetKeys configures the attributes pinned first (major) and second
// (minor) in the sorted order. Either may be nil. Attributes already
// present are reordered.
func (c *Collection) SetKeys(major, minor *Definition) {
	c.keys = [2]*Definition{major, minor}

	list := c.Sorted()
	c.head, c.tail = none, none
	for _, a := range list {
		a.prev, a.next = none, none
		c.link(a)
	}
}

// Keys returns the major and minor key definitions.
func (c *Collection) Keys() (major, minor *Definition) { return c.keys[0], c.keys[1] }

func (c *Collection) get(h handle) *Attribute {
	if h == none {
		return nil
	}
	return c.arena[h]
}

func bucket(id int) int {
	if id < 0 {
		id = -id
	}
	return id % hashSize
}

// Lookup returns the attribute with the given id or nil.
func (c *Collection) Lookup(id int) *Attribute {
	for _, h := range c.buckets[bucket(id)] {
		if a := c.arena[h]; a.def.id == id {
			return a
		}
	}
	return nil
}

// Len returns the number of attributes.
func (c *Collection) Len() int { return c.count }

// compare orders the major key first, the minor key second and
// everything else by description, ignoring case.
func (c *Collection) compare(a, b *Attribute) int {
	major, minor := c.keys[0], c.keys[1]
	switch {
	case a.def == b.def:
		return 0
	case major != nil && a.def == major:
		return -1
	case major != nil && b.def == major:
		return 1
	case minor != nil && a.def == minor:
		return -1
	case minor != nil && b.def == minor:
		return 1
	}
	return strings.Compare(strings.ToLower(a.def.description), strings.ToLower(b.def.description))
}

func (c *Collection) insert(a *Attribute) {
	var h handle
	if n := len(c.free); n > 0 {
		h = c.free[n-1]
		c.free = c.free[:n-1]
		c.arena[h] = a
	} else {
		h = handle(len(c.arena))
		c.arena = append(c.arena, a)
	}
	a.handle = h

	b := bucket(a.def.id)
	c.buckets[b] = append(c.buckets[b], h)
	c.count++

	c.link(a)
}

// link places a into the sorted list before the first entry it
// compares less than.
func (c *Collection) link(a *Attribute) {
	for h := c.head; h != none; h = c.arena[h].next {
		cur := c.arena[h]
		if c.compare(a, cur) < 0 {
			a.prev, a.next = cur.prev, h
			if cur.prev != none {
				c.arena[cur.prev].next = a.handle
			} else {
				c.head = a.handle
			}
			cur.prev = a.handle
			return
		}
	}

	a.prev, a.next = c.tail, none
	if c.tail != none {
		c.arena[c.tail].next = a.handle
	} else {
		c.head = a.handle
	}
	c.tail = a.handle
}

func (c *Collection) unlink(a *Attribute) {
	if a.prev != none {
		c.arena[a.prev].next = a.next
	} else {
		c.head = a.next
	}
	if a.next != none {
		c.arena[a.next].prev = a.prev
	} else {
		c.tail = a.prev
	}
	a.prev, a.next = none, none
}

// Remove frees the attribute with the given id. It reports whether it
// was present. A selection pointing at it is cleared.
func (c *Collection) Remove(id int) bool {
	a := c.Lookup(id)
	if a == nil {
		return false
	}
	h := a.handle

	b := bucket(id)
	for i, bh := range c.buckets[b] {
		if bh == h {
			c.buckets[b] = append(c.buckets[b][:i], c.buckets[b][i+1:]...)
			break
		}
	}
	c.unlink(a)
	if c.current == h {
		c.current = none
	}

	c.arena[h] = nil
	c.free = append(c.free, h)
	c.count--
	a.handle = none
	return true
}

// Each calls fn for every attribute in sorted order.
func (c *Collection) Each(fn func(a *Attribute)) {
	for h := c.head; h != none; {
		a := c.arena[h]
		h = a.next
		fn(a)
	}
}

// Sorted returns the attributes in display order.
func (c *Collection) Sorted() []*Attribute {
	list := make([]*Attribute, 0, c.count)
	c.Each(func(a *Attribute) { list = append(list, a) })
	return list
}

// SelectFirst selects the first attribute in display order. Returns
// nil if the collection is empty.
func (c *Collection) SelectFirst() *Attribute {
	c.current = c.head
	return c.get(c.current)
}

// SelectLast selects the last attribute in display order.
func (c *Collection) SelectLast() *Attribute {
	c.current = c.tail
	return c.get(c.current)
}

// SelectNext advances the selection, wrapping around to the first
// attribute past the end.
func (c *Collection) SelectNext() *Attribute {
	if c.current == none {
		return c.SelectFirst()
	}
	if next := c.arena[c.current].next; next != none {
		c.current = next
		return c.get(next)
	}
	return c.SelectFirst()
}

// SelectPrev moves the selection back, wrapping around to the last
// attribute past the beginning.
func (c *Collection) SelectPrev() *Attribute {
	if c.current == none {
		return c.SelectFirst()
	}
	if prev := c.arena[c.current].prev; prev != none {
		c.current = prev
		return c.get(prev)
	}
	return c.SelectLast()
}

// Current returns the selected attribute, selecting the first one if
// nothing is selected yet.
func (c *Collection) Current() *Attribute {
	if c.current == none {
		return c.SelectFirst()
	}
	return c.get(c.current)
}

// Select makes the attribute with the given id current. It returns
// nil and leaves the selection alone if no such attribute exists.
func (c *Collection) Select(id int) *Attribute {
	a := c.Lookup(id)
	if a != nil {
		c.current = a.handle
	}
	return a
}
