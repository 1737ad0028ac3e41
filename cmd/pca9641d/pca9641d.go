// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pca9641d attaches a master selector, checks it periodically
// with a select and release round, publishes its statistics to redis,
// and serves them by RPC on the abstract socket "@NAME".
package pca9641d

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"strconv"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/pca9641/environ/nxp/pca9641"
	"github.com/platinasystems/pca9641/goes"
	"github.com/platinasystems/pca9641/internal/conf"
	"github.com/platinasystems/pca9641/internal/pca9641sim"
	"github.com/platinasystems/pca9641/internal/publisher"
)

const (
	Name            = "pca9641d"
	DefaultInterval = 30 * time.Second
)

var Parms = []interface{}{"-interval", "-redis", "-hash", "-name"}

// Printer is satisfied by *publisher.Publisher.
type Printer interface {
	Print(...interface{}) (int, error)
}

type Command struct {
	Info

	// Chip of "-transport sim"; nil is a new one.
	Sim *pca9641sim.Chip

	// If set, publish here instead of the "-redis" socket.
	Pub Printer

	// Attach retry backoff; zero is 100ms to 10s.
	Backoff backoff.Backoff
}

// Info is the RPC receiver.
type Info struct {
	mutex sync.Mutex
	reg   *pca9641.Registry
	locks map[pca9641.Key]sync.Locker
	pub   Printer
	last  map[string]string
	ready chan struct{}
}

func (c *Command) Main(ctx context.Context, args ...string) error {
	if goes.Preemption(ctx) == "help" {
		goes.Usage(ctx, "[-interval DURATION] [-redis SOCKET] [-hash HASH]",
			" [-name NAME] [SELECTOR OPTION]...\n", conf.Usage)
		return nil
	}
	parm, args := parms.New(args, Parms...)
	sel, args, err := conf.New(args)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	interval := DefaultInterval
	if s := parm.ByName["-interval"]; len(s) > 0 {
		if interval, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("-interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("-interval: %v: not positive", interval)
		}
	}
	name := parm.ByName["-name"]
	if len(name) == 0 {
		name = Name
	}

	c.Info.init()
	if c.Pub != nil {
		c.pub = c.Pub
	} else if addr := parm.ByName["-redis"]; len(addr) > 0 {
		pub := publisher.New("unix", addr, parm.ByName["-hash"])
		defer pub.Close()
		c.pub = pub
	}

	bus, err := sel.Open(c.Sim)
	if err != nil {
		return err
	}
	defer bus.Close()

	d, err := c.attach(ctx, bus, sel.Config)
	if err != nil {
		return err
	}
	if err = c.reg.Add(d); err != nil {
		d.Detach()
		return err
	}
	c.locks[d.Key()] = bus.Lock
	defer c.reg.Close()

	ln, err := atsock.Listen(name)
	if err != nil {
		return err
	}
	srv := rpc.NewServer()
	if err = srv.Register(&c.Info); err != nil {
		ln.Close()
		return err
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	defer ln.Close()
	wg.Add(1)
	go serve(&wg, srv, ln)

	c.poll()
	close(c.ready)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.poll()
		}
	}
}

// Ready is closed after the first poll.
func (c *Command) Ready() <-chan struct{} {
	c.Info.init()
	return c.ready
}

// attach retries until the selector answers, the context is done, or
// the failure isn't transient.
func (c *Command) attach(ctx context.Context, bus *conf.Bus,
	cfg pca9641.Config) (*pca9641.Device, error) {
	b := c.Backoff
	if b.Min == 0 {
		b.Min = 100 * time.Millisecond
	}
	if b.Max == 0 {
		b.Max = 10 * time.Second
	}
	for {
		d, err := pca9641.Attach(bus.Transport, bus.Lock, cfg)
		if err == nil {
			return d, nil
		}
		if errors.Is(err, pca9641.ErrUnsupported) {
			return nil, err
		}
		dur := b.Duration()
		log.Print("daemon", "warn", Name, ": attach attempt ", b.Attempt(),
			": ", err, ", retry in ", dur)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(dur):
		}
	}
}

// serve returns when the listener is closed; connections are served
// until their clients hang up.
func serve(wg *sync.WaitGroup, srv *rpc.Server, ln net.Listener) {
	defer wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go srv.ServeConn(conn)
	}
}

func (i *Info) init() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if i.reg != nil {
		return
	}
	i.reg = pca9641.NewRegistry()
	i.locks = make(map[pca9641.Key]sync.Locker)
	i.last = make(map[string]string)
	i.ready = make(chan struct{})
}

// poll runs a health round on every selector and publishes what changed.
func (i *Info) poll() {
	for _, k := range i.reg.Keys() {
		d, err := i.reg.Lookup(k)
		if err != nil {
			continue
		}
		st, _ := i.round(k, d)
		i.publish(st)
	}
}

// round returns the statistics after release but with the state reached
// by select.
func (i *Info) round(k pca9641.Key, d *pca9641.Device) (pca9641.Stats, error) {
	i.mutex.Lock()
	lk := i.locks[k]
	i.mutex.Unlock()
	lk.Lock()
	defer lk.Unlock()
	err := d.Select()
	if err != nil {
		log.Print("daemon", "warn", d, ": health: ", err)
	}
	state := d.State()
	d.Release()
	st := d.Stats()
	st.State = state
	return st, err
}

func (i *Info) publish(st pca9641.Stats) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	prefix := "pca9641." + pca9641.Key{Bus: st.Bus, Addr: st.Addr}.String() + "."
	for _, f := range Fields(st) {
		k := prefix + f.Name
		if i.last[k] == f.Value {
			continue
		}
		if i.pub != nil {
			if _, err := i.pub.Print(k, ": ", f.Value); err != nil {
				log.Print("daemon", "err", Name, ": publish: ", err)
				// retry next poll
				continue
			}
		}
		i.last[k] = f.Value
	}
}

type Field struct {
	Name, Value string
}

// Fields are the published statistics in a fixed order.
func Fields(st pca9641.Stats) []Field {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []Field{
		{"variant", st.Variant.String()},
		{"state", st.State.String()},
		{"delay", st.Delay.String()},
		{"control", fmt.Sprintf("0x%02x", uint8(st.Control))},
		{"status", fmt.Sprintf("0x%02x", uint8(st.Status))},
		{"selects", u(st.Selects)},
		{"acquired", u(st.Acquired)},
		{"timeouts", u(st.Timeouts)},
		{"bus_errors", u(st.BusErrors)},
		{"ignored", u(st.Ignored)},
		{"rounds", u(st.Rounds)},
		{"releases", u(st.Releases)},
		{"overdue", u(st.Overdue)},
		{"latency", st.Latency.String()},
	}
}

func (i *Info) lookup(key string) (*pca9641.Device, pca9641.Key, error) {
	if len(key) == 0 {
		keys := i.reg.Keys()
		if len(keys) == 0 {
			return nil, pca9641.Key{}, pca9641.ErrNotAttached
		}
		k := keys[0]
		d, err := i.reg.Lookup(k)
		return d, k, err
	}
	k, err := pca9641.ParseKey(key)
	if err != nil {
		return nil, k, err
	}
	d, err := i.reg.Lookup(k)
	return d, k, err
}

// Keys lists the attached selectors as "BUS.ADDR".
func (i *Info) Keys(_ int, reply *[]string) error {
	for _, k := range i.reg.Keys() {
		*reply = append(*reply, k.String())
	}
	return nil
}

// Status returns the statistics of the keyed selector; an empty key is
// the first one.
func (i *Info) Status(key string, reply *pca9641.Stats) error {
	d, _, err := i.lookup(key)
	if err != nil {
		return err
	}
	*reply = d.Stats()
	return nil
}

// Select runs a select and release round on the keyed selector.
func (i *Info) Select(key string, reply *pca9641.Stats) error {
	d, k, err := i.lookup(key)
	if err != nil {
		return err
	}
	*reply, err = i.round(k, d)
	return err
}

// Release drops ownership of the keyed selector.
func (i *Info) Release(key string, reply *pca9641.Stats) error {
	d, k, err := i.lookup(key)
	if err != nil {
		return err
	}
	i.mutex.Lock()
	lk := i.locks[k]
	i.mutex.Unlock()
	lk.Lock()
	defer lk.Unlock()
	err = d.Release()
	*reply = d.Stats()
	return err
}
