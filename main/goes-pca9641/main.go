// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is the master selector command and daemon.
package main

import (
	"github.com/platinasystems/pca9641/cmd/pca9641"
	"github.com/platinasystems/pca9641/cmd/pca9641d"
	"github.com/platinasystems/pca9641/goes"
)

func main() {
	goes.Selection{
		"pca9641":  (&pca9641.Command{}).Main,
		"pca9641d": (&pca9641d.Command{}).Main,
	}.Main()
}
