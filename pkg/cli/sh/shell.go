// Package sh provides the interactive shell driving a hub.
package sh

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/boost.go/pkg/env"
	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/transport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	// Timeout bounds a single command.
	Timeout time.Duration
	// ConnectTimeout bounds scanning and connecting.
	ConnectTimeout time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *HubConn
}

// HubConn is a running loop with a connected hub.
type HubConn struct {
	Ctx        context.Context
	Cancel     func()
	ID         string
	Loop       *fx.Loop
	Controller *hub.Controller
	done       chan struct{}
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	defaultTimeout        = time.Second
	defaultConnectTimeout = 10 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ScanCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		&StopCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive:    !evalOnly,
		OutputJSON:     outputJSON,
		Timeout:        defaultTimeout,
		ConnectTimeout: defaultConnectTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// CommandFunc executes a command on the connected hub. A nil result prints OK.
type CommandFunc func(ctx context.Context, ctl *hub.Controller) (interface{}, error)

// Do runs a command on the connected hub and prints the result.
func Do(c *ishell.Context, fn CommandFunc) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(s.Conn.Ctx, s.Timeout)
	defer cancel()
	res, err := fn(ctx, s.Conn.Controller)
	if err != nil {
		c.Err(err)
		return err
	}
	return s.Print(c, res)
}

// Print writes a result in text or JSON.
func (s *Shell) Print(c *ishell.Context, res interface{}) error {
	if s.OutputJSON {
		if res == nil {
			res = map[string]bool{"ok": true}
		}
		out, err := json.Marshal(res)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	switch v := res.(type) {
	case nil:
		c.Println("OK")
	case *hub.Status:
		c.Print(FormatStatus(v))
	case fmt.Stringer:
		c.Println(v.String())
	default:
		c.Println(v)
	}
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Discover scans for hubs.
func (s *Shell) Discover() ([]transport.Peripheral, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ConnectTimeout)
	defer cancel()
	if s.Conn != nil {
		return s.Conn.Controller.Scan(ctx)
	}
	t, err := s.Config.NewTransport()
	if err != nil {
		return nil, err
	}
	return t.Discover(ctx)
}

// Connect connects hub with id, or the first discovered if id is empty.
func (s *Shell) Connect(id string) error {
	ctl, err := s.Config.NewController()
	if err != nil {
		return err
	}
	conn := &HubConn{Loop: fx.NewLoop(), Controller: ctl, done: make(chan struct{})}
	conn.Loop.Add(ctl)
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	go func() {
		conn.Loop.Run(conn.Ctx)
		close(conn.done)
	}()

	conf := *s.Config
	conf.Device = id
	ctx, cancel := context.WithTimeout(conn.Ctx, s.ConnectTimeout)
	defer cancel()
	if conn.ID, err = conf.Connect(ctx, ctl); err != nil {
		conn.Cancel()
		return err
	}
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conn.ID))
	return nil
}

// Disconnect disconnects current hub.
func (s *Shell) Disconnect() {
	if s.Conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.Conn.Ctx, s.Timeout)
	if err := s.Conn.Controller.Disconnect(ctx); err != nil {
		glog.Warningf("disconnect %s: %v", s.Conn.ID, err)
	}
	cancel()
	s.Conn.Cancel()
	<-s.Conn.done
	s.Conn = nil
	s.Shell.SetPrompt(unconnectedPrompt)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && (s.Config.Device != "" || !s.Interactive) {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Device)
		}
		if err := s.Connect(s.Config.Device); err != nil {
			glog.Exitf("connect %q failed: %v", s.Config.Device, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// FormatStatus prints Status into friendly text for display.
func FormatStatus(st *hub.Status) string {
	var w bytes.Buffer
	if !st.Connected {
		fmt.Fprintf(&w, "disconnected\n")
		return w.String()
	}
	if st.Firmware != nil {
		fmt.Fprintf(&w, "firmware %s\n", st.Firmware)
	}
	for _, p := range st.Ports {
		fmt.Fprintf(&w, "%-4s %3d %s", p.Label, p.Port, p.Device)
		if hub.IsMotor(p.Device) {
			fmt.Fprintf(&w, " %s power=%d direction=%d position=%d", p.State, p.Power, p.Direction, p.Position)
			if p.Remaining > 0 {
				fmt.Fprintf(&w, " remaining=%s", p.Remaining.Round(time.Millisecond))
			}
		}
		fmt.Fprintf(&w, "\n")
	}
	fmt.Fprintf(&w, "tilt x=%d y=%d color %s\n", int8(st.Sensors.TiltX), int8(st.Sensors.TiltY), st.Sensors.Color)
	return w.String()
}

var (
	// ScanCmd discovers hubs.
	ScanCmd = ishell.Cmd{
		Name:    "scan",
		Aliases: []string{"discover", "l"},
		Help:    "discover hubs",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			found, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if found == nil {
					found = []transport.Peripheral{}
				}
				s.Print(c, found)
				return
			}
			if len(found) == 0 {
				c.Println("No hubs found")
				return
			}
			for _, p := range found {
				c.Printf("%s %s rssi=%d\n", p.ID, p.Name, p.RSSI)
			}
		},
	}

	// ConnectCmd connects a hub.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			var id string
			if len(c.Args) > 0 {
				id = c.Args[0]
			}
			if err := ShellFrom(c).Connect(id); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current hub.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd shows the hub status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return ctl.Status(ctx)
			})
		}),
	}

	// StopCmd stops all motors.
	StopCmd = ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"s"},
		Help:    "stop all motors",
		Func: MustBeConnected(func(c *ishell.Context) {
			Do(c, func(ctx context.Context, ctl *hub.Controller) (interface{}, error) {
				return nil, ctl.StopAllMotors(ctx)
			})
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf, err := env.NewConfig()
	if err != nil {
		glog.Exit(err)
	}
	New(conf).WithAutoConnect(true).Run(flag.Args()...)
}
