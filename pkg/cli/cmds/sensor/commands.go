package sensor

import (
	"context"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/boost.go/pkg/cli/sh"
	"github.com/robotalks/boost.go/pkg/hub"
)

func parseTilt(c *ishell.Context) (hub.TiltDirection, bool) {
	if len(c.Args) == 0 {
		return hub.TiltAny, true
	}
	dir, ok := hub.ParseTiltDirection(c.Args[0])
	if !ok {
		c.Err(fmt.Errorf("Invalid DIRECTION: %q", c.Args[0]))
	}
	return dir, ok
}

var (
	// TiltCmd shows the tilt angle.
	TiltCmd = ishell.Cmd{
		Name:    "tilt",
		Aliases: []string{"t"},
		Help:    "[up|down|left|right|any]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			dir, ok := parseTilt(c)
			if !ok {
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.TiltAngle(ctx, dir)
			})
		}),
	}

	// TiltedCmd tells whether the hub is tilted.
	TiltedCmd = ishell.Cmd{
		Name:    "tilted",
		Aliases: []string{"tilted?"},
		Help:    "[up|down|left|right|any]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			dir, ok := parseTilt(c)
			if !ok {
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.IsTilted(ctx, dir)
			})
		}),
	}

	// ColorCmd shows the color seen by the sensor.
	ColorCmd = ishell.Cmd{
		Name:    "color",
		Aliases: []string{"col"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.Color(ctx)
			})
		}),
	}

	// SeeingColorCmd tells whether the sensor sees a color.
	SeeingColorCmd = ishell.Cmd{
		Name:    "seeing",
		Aliases: []string{"seeing?"},
		Help:    "none|red|blue|green|yellow|white|black",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COLOR required"))
				return
			}
			color, ok := hub.ParseColor(c.Args[0])
			if !ok {
				c.Err(fmt.Errorf("Invalid COLOR: %q", c.Args[0]))
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.SeeingColor(ctx, color)
			})
		}),
	}

	// ColorChangedCmd tells whether the color changed since last asked.
	ColorChangedCmd = ishell.Cmd{
		Name:    "color.changed",
		Aliases: []string{"changed?"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.ColorChanged(ctx)
			})
		}),
	}

	// LEDCmd sets the hub LED color.
	LEDCmd = ishell.Cmd{
		Name:    "led",
		Aliases: []string{},
		Help:    "RGB(#rrggbb)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("RGB required"))
				return
			}
			rgb, err := hub.ParseRGB(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sh.Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.SetLED(ctx, rgb)
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&TiltCmd,
		&TiltedCmd,
		&ColorCmd,
		&SeeingColorCmd,
		&ColorChangedCmd,
		&LEDCmd,
	)
}
