package main

import (
	"github.com/robotalks/boost.go/pkg/cli/sh"
	"github.com/robotalks/boost.go/pkg/env"

	_ "github.com/robotalks/boost.go/pkg/cli/cmds/all"
)

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
