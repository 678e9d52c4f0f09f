// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"lexredact/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
