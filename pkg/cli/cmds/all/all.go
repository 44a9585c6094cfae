// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/boost.go/pkg/cli/cmds/motor"
	_ "github.com/robotalks/boost.go/pkg/cli/cmds/sensor"
)
