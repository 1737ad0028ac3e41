// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import "context"

var preemptive = map[string]bool{
	"complete": true,
	"help":     true,
}

// Preemption returns "complete" or "help" if the context path is
// preempted by either; otherwise, this returns an empty string.
func Preemption(ctx context.Context) string {
	path := PathOf(ctx)
	if len(path) > 1 && preemptive[path[1]] {
		return path[1]
	}
	return ""
}

// Move the "complete" and "help" preeemptive command arguments to context.
func Preempt(ctx context.Context, args []string) (context.Context, []string) {
	for len(args) > 0 && preemptive[args[0]] {
		ctx = WithPath(ctx, args[0])
		args = args[1:]
	}
	return ctx, args
}

// Usage prints this formatted text.
//
//	usage: PATH ARGS...
//
// Where PATH is the space separated elements pushed onto the context
// less any preemption. The ARGS are formatted with `fmt.Print` WITHOUT
// space separation. A Selection arg is printed as an indented list of
// its keys.
func Usage(ctx context.Context, args ...interface{}) {
	o := OutputOf(ctx)
	o.Print("usage:")
	p := PathOf(ctx)
	if n := len(p); n >= 2 && preemptive[p[1]] {
		copy(p[1:], p[2:])
		p = p[:n-1]
	}
	for _, s := range p {
		o.Print(" ", s)
	}
	end := "\n"
	if len(args) == 0 {
		o.Print(end)
		return
	}
	o.Print(" ")
	for _, v := range args {
		if sel, ok := v.(Selection); ok {
			end = ""
			for _, s := range sel.Keys() {
				if len(s) > 0 {
					o.Println(" ", s)
				}
			}
		} else {
			o.Print(v)
		}
	}
	o.Print(end)
}
