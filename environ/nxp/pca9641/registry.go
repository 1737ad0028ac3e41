// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Key identifies a selector by bus index and address.
type Key struct {
	Bus  int
	Addr uint8
}

func (k Key) String() string { return fmt.Sprintf("%d.%02x", k.Bus, k.Addr) }

// ParseKey is the inverse of Key.String; the address is hexadecimal.
func ParseKey(s string) (Key, error) {
	var k Key
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return k, fmt.Errorf("%q: missing address", s)
	}
	bus, err := strconv.ParseUint(s[:i], 10, 16)
	if err != nil {
		return k, fmt.Errorf("%q: bus: %w", s, err)
	}
	addr, err := strconv.ParseUint(s[i+1:], 16, 7)
	if err != nil {
		return k, fmt.Errorf("%q: address: %w", s, err)
	}
	k.Bus, k.Addr = int(bus), uint8(addr)
	return k, nil
}

// Registry maps keys to attached devices for lookup by other drivers.
// Build one at start and Close it at exit.
type Registry struct {
	mutex sync.Mutex
	devs  map[Key]*Device
}

func NewRegistry() *Registry {
	return &Registry{devs: make(map[Key]*Device)}
}

// Add fails if another device already has the same key.
func (r *Registry) Add(d *Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	k := d.Key()
	if _, found := r.devs[k]; found {
		return fmt.Errorf("%s: already registered", k)
	}
	r.devs[k] = d
	d.setRegistry(r)
	return nil
}

func (r *Registry) Lookup(k Key) (*Device, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if d, found := r.devs[k]; found {
		return d, nil
	}
	return nil, fmt.Errorf("%s: %w", k, ErrNotAttached)
}

func (r *Registry) Remove(k Key) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if d, found := r.devs[k]; found {
		d.setRegistry(nil)
		delete(r.devs, k)
	}
}

// Keys are sorted by bus then address.
func (r *Registry) Keys() []Key {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	keys := make([]Key, 0, len(r.devs))
	for k := range r.devs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Bus != keys[j].Bus {
			return keys[i].Bus < keys[j].Bus
		}
		return keys[i].Addr < keys[j].Addr
	})
	return keys
}

// Close detaches every device, returning the first error.
func (r *Registry) Close() error {
	var err error
	for _, k := range r.Keys() {
		d, lerr := r.Lookup(k)
		if lerr != nil {
			continue
		}
		if xerr := d.Detach(); err == nil {
			err = xerr
		}
	}
	return err
}
