// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"context"
	"fmt"
	"io"
)

var (
	outputMark int
	outputKey  = &outputMark
	pathMark   int
	pathKey    = &pathMark
	usageMark  int
	usageKey   = &usageMark
)

func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return Output{ctx, w}
}

// Output discards everything once its context is done or if it has no
// writer.
type Output struct {
	context.Context
	w io.Writer
}

func OutputOf(ctx context.Context) Output {
	if v := ctx.Value(outputKey); v != nil {
		return v.(Output)
	}
	return Output{ctx, nil}
}

func (o Output) Print(args ...interface{}) {
	if o.Err() != nil || o.w == nil {
		return
	}
	fmt.Fprint(o.w, args...)
}

func (o Output) Printf(format string, args ...interface{}) {
	if o.Err() != nil || o.w == nil {
		return
	}
	fmt.Fprintf(o.w, format, args...)
}

func (o Output) Println(args ...interface{}) {
	if o.Err() != nil || o.w == nil {
		return
	}
	fmt.Fprintln(o.w, args...)
}

func (o Output) Write(data []byte) (int, error) {
	if err := o.Err(); err != nil {
		return 0, err
	}
	if o.w == nil {
		return len(data), nil
	}
	return o.w.Write(data)
}

func (o Output) Value(k interface{}) interface{} {
	if k == outputKey {
		return o
	}
	return o.Context.Value(k)
}

// PathOf() returns a FIFO of each element appended to the context.
func PathOf(ctx context.Context) []string {
	var l []string
	for v := ctx.Value(pathKey); v != nil; v = ctx.Value(pathKey) {
		p := v.(path)
		l = append(l, p.name)
		ctx = p.Context
	}
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
	return l
}

// Append a element to context.
func WithPath(ctx context.Context, name string) context.Context {
	return path{ctx, name}
}

type path struct {
	context.Context
	name string
}

func (p path) Value(k interface{}) interface{} {
	if k == pathKey {
		return p
	}
	return p.Context.Value(k)
}

func UsageOf(ctx context.Context) func() {
	if v := ctx.Value(usageKey); v != nil {
		return v.(func())
	}
	return nil
}

func WithUsage(ctx context.Context, f func()) context.Context {
	return context.WithValue(ctx, usageKey, f)
}
