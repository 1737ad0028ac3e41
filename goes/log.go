// Copyright © 2016-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import (
	"fmt"
	stdlog "log"
	"os"
	"syscall"

	"github.com/platinasystems/log"
)

var TerminationSignals = []os.Signal{
	os.Interrupt,
	os.Signal(syscall.SIGTERM),
}

// Fatal records v with the system logger, prints it, then exits.
func Fatal(v ...interface{}) {
	s := fmt.Sprint(v...)
	log.Print("user", "err", Prog, ": ", s)
	stdlog.Fatal(s)
}

// PlainLog prefixes terminal messages with the program name alone.
func PlainLog() {
	stdlog.SetOutput(os.Stderr)
	stdlog.SetFlags(0)
	stdlog.SetPrefix(Prog + ": ")
}

// StyleLog adds the source line to panics and other terminal messages
// logged before a command fails.
func StyleLog() {
	stdlog.SetOutput(os.Stderr)
	stdlog.SetFlags(stdlog.Lshortfile)
	stdlog.SetPrefix(Prog + ":")
}
