// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package goes selects and runs context driven commands.
//
// A command is a Func that finds its output, path, and preemption in the
// context rather than in global state so that it may be run from a
// terminal, a daemon, or a test alike.
package goes

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

var Prog = filepath.Base(os.Args[0])

var ErrNotFound = errors.New("command not found")

type Func = func(context.Context, ...string) error

type Selection map[string]Func

var BuiltIn = Selection{
	"version": func(ctx context.Context, args ...string) error {
		if bi, ok := debug.ReadBuildInfo(); ok {
			OutputOf(ctx).Println(bi.Main.Version)
		}
		return nil
	},
}

func (m Selection) Keys() []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Main runs the command named by the program arguments until done or
// terminated by signal.
func (m Selection) Main() {
	StyleLog()
	ctx, stop := signal.NotifyContext(context.Background(),
		TerminationSignals...)
	defer stop()
	for k, v := range BuiltIn {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	ctx = WithOutput(ctx, os.Stdout)
	ctx = WithPath(ctx, Prog)
	fs := flag.NewFlagSet(Prog, flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0,
		"Terminate command if incomplete by non-zero limit.")
	fs.Usage = func() {
		Usage(ctx, "[-timeout DURATION] COMMAND [OPTION]...\n",
			"\n",
			m)
	}
	ctx = WithUsage(ctx, fs.Usage)
	if err := fs.Parse(os.Args[1:]); err == flag.ErrHelp {
		return
	} else if err != nil {
		PlainLog()
		Fatal(err)
	}
	if *timeout != 0 {
		t, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		ctx = t
	}
	args := fs.Args()
	ctx, args = Preempt(ctx, args)
	defer recovery()
	if err := m.Select(ctx, args...); err != nil {
		PlainLog()
		Fatal(err)
	}
}

// Select runs the command named by the first argument with the rest.
func (m Selection) Select(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		switch Preemption(ctx) {
		case "":
			if f, found := m[""]; found {
				return f(ctx)
			}
			return ErrorfWith(ctx, "incomplete")
		case "complete":
			m.complete(ctx)
		case "help":
			m.usage(ctx)
		}
	} else if f, found := m[args[0]]; found {
		ctx = WithPath(ctx, args[0])
		return f(ctx, args[1:]...)
	} else {
		switch Preemption(ctx) {
		case "":
			return ErrorfWith(ctx, "%s: %w", args[0], ErrNotFound)
		case "complete":
			m.complete(ctx, args...)
		case "help":
			m.usage(ctx)
		}
	}
	return nil
}

func (m Selection) complete(ctx context.Context, args ...string) {
	o := OutputOf(ctx)
	for _, s := range CompleteStrings(m.Keys(), args) {
		o.Println(s)
	}
}

func (m Selection) usage(ctx context.Context) {
	if usage := UsageOf(ctx); usage != nil {
		usage()
	} else {
		Usage(ctx, "COMMAND [OPTION]...\n", m)
	}
}

// CompleteStrings returns the members of l prefixed by the last arg.
func CompleteStrings(l []string, args []string) (c []string) {
	var arg string
	if len(args) > 0 {
		arg = args[len(args)-1]
	}
	for _, s := range l {
		if len(s) == 0 {
			continue
		}
		if strings.HasPrefix(s, arg) {
			c = append(c, s)
		}
	}
	return
}

// ErrorfWith context path preface.
func ErrorfWith(ctx context.Context, format string, args ...interface{}) error {
	return fmt.Errorf(strings.Join(PathOf(ctx), " ")+": "+format, args...)
}

func recovery() {
	r := recover()
	if r == nil {
		return
	}
	sb := new(strings.Builder)
	fmt.Fprintln(sb, r)
	pcs := make([]uintptr, 64)
	if n := runtime.Callers(2, pcs); n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			f, more := frames.Next()
			if len(f.Function) == 0 {
				break
			}
			if strings.Contains(f.File, "runtime/") {
				continue
			}
			fmt.Fprint(sb, "    ", f.Function, "()\n")
			fmt.Fprint(sb, "        ", f.File, ":", f.Line, "\n")
			if !more {
				break
			}
		}
	}
	PlainLog()
	Fatal(sb)
}
