// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jcodagnone/haulsheet/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
