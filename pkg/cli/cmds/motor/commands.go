package motor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/boost.go/pkg/cli/sh"
	"github.com/robotalks/boost.go/pkg/hub"
)

func motorArgs(c *ishell.Context, names ...string) bool {
	if len(c.Args) < len(names) {
		c.Err(fmt.Errorf("%s required", strings.Join(names, " ")))
		return false
	}
	return true
}

var (
	// MotorOnCmd turns on motors.
	MotorOnCmd = ishell.Cmd{
		Name:    "motor.on",
		Aliases: []string{"on"},
		Help:    "MOTOR(A|B|C|D|AB|ALL)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR") {
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.MotorOn(ctx, c.Args[0])
			})
		}),
	}

	// MotorOffCmd turns off motors.
	MotorOffCmd = ishell.Cmd{
		Name:    "motor.off",
		Aliases: []string{"off"},
		Help:    "MOTOR",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR") {
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.MotorOff(ctx, c.Args[0])
			})
		}),
	}

	// MotorForCmd turns on motors for a while.
	MotorForCmd = ishell.Cmd{
		Name:    "motor.for",
		Aliases: []string{"for"},
		Help:    "MOTOR SECONDS",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR", "SECONDS") {
				return
			}
			secs, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(fmt.Errorf("Invalid SECONDS: %v", err))
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.MotorOnFor(ctx, c.Args[0], time.Duration(secs*float64(time.Second)))
			})
		}),
	}

	// MotorRotateCmd turns on motors for rotations and waits until finished.
	MotorRotateCmd = ishell.Cmd{
		Name:    "motor.rotate",
		Aliases: []string{"rotate", "r"},
		Help:    "MOTOR ROTATIONS",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR", "ROTATIONS") {
				return
			}
			rotations, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(fmt.Errorf("Invalid ROTATIONS: %v", err))
				return
			}
			s := sh.ShellFrom(c)
			completions, err := s.Conn.Controller.MotorOnForRotation(s.Conn.Ctx, c.Args[0], rotations)
			if err != nil {
				c.Err(err)
				return
			}
			if err := hub.WaitAll(s.Conn.Ctx, completions...); err != nil {
				c.Err(err)
				return
			}
			s.Print(c, nil)
		}),
	}

	// MotorPowerCmd sets the power of motors.
	MotorPowerCmd = ishell.Cmd{
		Name:    "motor.power",
		Aliases: []string{"power", "p"},
		Help:    "MOTOR POWER(0-100)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR", "POWER") {
				return
			}
			power, err := strconv.Atoi(c.Args[1])
			if err != nil {
				c.Err(fmt.Errorf("Invalid POWER: %v", err))
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.SetMotorPower(ctx, c.Args[0], power)
			})
		}),
	}

	// MotorDirectionCmd sets the direction of motors.
	MotorDirectionCmd = ishell.Cmd{
		Name:    "motor.direction",
		Aliases: []string{"direction", "dir"},
		Help:    "MOTOR this|that|reverse",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR", "DIRECTION") {
				return
			}
			dir := strings.Join(c.Args[1:], " ")
			if _, ok := hub.ParseDirection(dir); !ok {
				c.Err(fmt.Errorf("Invalid DIRECTION: %q", dir))
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.SetMotorDirection(ctx, c.Args[0], dir)
			})
		}),
	}

	// MotorPositionCmd shows the position of a motor in degrees.
	MotorPositionCmd = ishell.Cmd{
		Name:    "motor.position",
		Aliases: []string{"position", "pos"},
		Help:    "MOTOR",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if !motorArgs(c, "MOTOR") {
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.MotorPosition(ctx, c.Args[0])
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&MotorOnCmd,
		&MotorOffCmd,
		&MotorForCmd,
		&MotorRotateCmd,
		&MotorPowerCmd,
		&MotorDirectionCmd,
		&MotorPositionCmd,
	)
}
