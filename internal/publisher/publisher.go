// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package publisher sets "FIELD: VALUE" lines as fields of a redis hash.
package publisher

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/garyburd/redigo/redis"
)

const DefaultHash = "platina"

func New(network, address, hash string) *Publisher {
	return NewPool(&redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial(network, address)
		},
	}, hash)
}

func NewPool(pool *redis.Pool, hash string) *Publisher {
	if len(hash) == 0 {
		hash = DefaultHash
	}
	return &Publisher{
		pool: pool,
		hash: hash,
		buf:  new(bytes.Buffer),
	}
}

type Publisher struct {
	pool *redis.Pool
	hash string
	buf  *bytes.Buffer
}

func (p *Publisher) Hash() string { return p.hash }

func (p *Publisher) Close() error { return p.pool.Close() }

func (p *Publisher) Print(a ...interface{}) (int, error) {
	p.buf.Reset()
	n, err := fmt.Fprint(p.buf, a...)
	if err == nil {
		err = p.write(p.buf.String())
	}
	return n, err
}

func (p *Publisher) Printf(format string, a ...interface{}) (int, error) {
	p.buf.Reset()
	n, err := fmt.Fprintf(p.buf, format, a...)
	if err == nil {
		err = p.write(p.buf.String())
	}
	return n, err
}

// Publish sets all fields with one command.
func (p *Publisher) Publish(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	conn := p.pool.Get()
	defer conn.Close()
	_, err := conn.Do("HMSET", redis.Args{}.Add(p.hash).AddFlat(fields)...)
	return err
}

func (p *Publisher) write(line string) error {
	field, value, err := split(line)
	if err != nil {
		return err
	}
	conn := p.pool.Get()
	defer conn.Close()
	_, err = conn.Do("HSET", p.hash, field, value)
	return err
}

func split(line string) (field, value string, err error) {
	line = strings.TrimRight(line, "\n")
	i := strings.Index(line, ": ")
	if i <= 0 {
		err = fmt.Errorf("%q: missing field", line)
		return
	}
	return line[:i], line[i+2:], nil
}
