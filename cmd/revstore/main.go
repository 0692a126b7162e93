// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/revstore/cmd/revstore/cmd"
)

func main() {
	cmd.Execute()
}
