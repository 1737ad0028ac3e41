// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/platinasystems/pca9641/cmd/pca9641d"
	"github.com/platinasystems/pca9641/goes"
	"github.com/platinasystems/pca9641/internal/pca9641sim"
)

func TestCommand(t *testing.T) {
	chip := pca9641sim.New()
	chip.Slave(0x50)[4] = 0x11
	c := &Command{Sim: chip}
	w := new(strings.Builder)
	ctx := goes.WithOutput(context.Background(), w)
	ctx = goes.WithPath(ctx, "pca9641")
	ut := func(
		t *testing.T,
		want string,
		args ...string,
	) {
		t.Helper()
		w.Reset()
		args = append([]string{"-transport", "sim"}, args...)
		if err := c.Main(ctx, args...); err != nil {
			t.Error(err)
		} else if got := w.String(); got != want {
			t.Errorf("%q != %q", got, want)
		}
	}
	t.Run("probe", func(t *testing.T) {
		ut(t, "pca9641 0.70\n", "probe")
	})
	t.Run("select", func(t *testing.T) {
		ut(t, "pca9641 0.70: acquired\n", "select")
		if owner := chip.Owner(); owner != 0 {
			t.Errorf("owner %d", owner)
		}
	})
	t.Run("release", func(t *testing.T) {
		ut(t, "pca9641 0.70: idle\n", "release")
		if owner := chip.Owner(); owner != -1 {
			t.Errorf("owner %d", owner)
		}
	})
	t.Run("read", func(t *testing.T) {
		ut(t, "0x11\n", "read", "0x50", "4")
	})
	t.Run("write", func(t *testing.T) {
		ut(t, "", "write", "0x50", "4", "0xa5")
		if v := chip.Slave(0x50)[4]; v != 0xa5 {
			t.Errorf("0x%02x", v)
		}
		ut(t, "0xa5\n", "read", "0x50", "4")
	})
	t.Run("pca9541", func(t *testing.T) {
		ut(t, "pca9541 0.70\n", "-variant", "pca9541", "probe")
	})
	if owner := chip.Owner(); owner != -1 {
		t.Errorf("downstream transfers left owner %d", owner)
	}
}

func TestCommandErrors(t *testing.T) {
	chip := pca9641sim.New()
	c := &Command{Sim: chip}
	ctx := goes.WithPath(context.Background(), "pca9641")
	ut := func(t *testing.T, match func(error) bool, args ...string) {
		t.Helper()
		err := c.Main(ctx, append([]string{"-transport", "sim"},
			args...)...)
		if !match(err) {
			t.Errorf("%q: %v", args, err)
		}
	}
	any := func(err error) bool { return err != nil }
	nak := func(err error) bool { return errors.Is(err, pca9641sim.ErrNak) }
	t.Run("absent-device", func(t *testing.T) {
		ut(t, nak, "read", "0x51", "0")
	})
	t.Run("missing-register", func(t *testing.T) {
		ut(t, any, "read", "0x50")
	})
	t.Run("bad-device", func(t *testing.T) {
		ut(t, any, "read", "0x80", "0")
	})
	t.Run("bad-value", func(t *testing.T) {
		ut(t, any, "write", "0x50", "0", "256")
	})
	t.Run("unknown", func(t *testing.T) {
		ut(t, func(err error) bool {
			return errors.Is(err, goes.ErrNotFound)
		}, "reset")
	})
	t.Run("wrong-id", func(t *testing.T) {
		chip.ID = 0x12
		defer func() { chip.ID = 0x38 }()
		ut(t, any, "probe")
	})
}

func TestHelp(t *testing.T) {
	w := new(strings.Builder)
	ctx := goes.WithOutput(context.Background(), w)
	ctx = goes.WithPath(ctx, "pca9641")
	ctx = goes.WithPath(ctx, "help")
	c := new(Command)
	if err := c.Main(ctx, "read"); err != nil {
		t.Fatal(err)
	}
	want := "usage: pca9641 read DEVICE REGISTER\n" +
		"Read a downstream register.\n"
	if got := w.String(); got != want {
		t.Errorf("%q != %q", got, want)
	}
	w.Reset()
	if err := c.Main(ctx); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"probe", "read", "status", "-transport T"} {
		if !strings.Contains(w.String(), s) {
			t.Errorf("%q missing from %q", s, w.String())
		}
	}
}

func TestStatus(t *testing.T) {
	name := fmt.Sprint("pca9641d-", os.Getpid(), "-", t.Name())
	daemon := &pca9641d.Command{Sim: pca9641sim.New()}
	dctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- daemon.Main(dctx, "-transport", "sim", "-name", name)
	}()
	defer func() {
		cancel()
		if err := <-errc; err != nil {
			t.Error(err)
		}
	}()
	select {
	case <-daemon.Ready():
	case err := <-errc:
		errc <- err
		t.Fatal(err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon not ready")
	}

	w := new(strings.Builder)
	ctx := goes.WithOutput(context.Background(), w)
	ctx = goes.WithPath(ctx, "pca9641")
	c := new(Command)
	if err := c.Main(ctx, "status", "-name", name); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		"variant: pca9641\n",
		"state: idle\n",
		"selects: 1\n",
		"acquired: 1\n",
		"timeouts: 0\n",
	} {
		if !strings.Contains(w.String(), s) {
			t.Errorf("%q missing from %q", s, w.String())
		}
	}
	if err := c.Main(ctx, "-bus", "1", "status", "-name", name); err == nil ||
		!strings.Contains(err.Error(), "not attached") {
		t.Errorf("status of 1.70: %v", err)
	}
}

func ExampleCommand() {
	chip := pca9641sim.New()
	chip.Slave(0x50)[0] = 0x5a
	ctx := goes.WithOutput(context.Background(), os.Stdout)
	ctx = goes.WithPath(ctx, "pca9641")
	c := &Command{Sim: chip}
	for _, args := range [][]string{
		{"probe"},
		{"select"},
		{"release"},
		{"read", "0x50", "0"},
	} {
		err := c.Main(ctx, append([]string{"-transport", "sim"},
			args...)...)
		if err != nil {
			fmt.Println(err)
		}
	}
	// Output:
	// pca9641 0.70
	// pca9641 0.70: acquired
	// pca9641 0.70: idle
	// 0x5a
}
