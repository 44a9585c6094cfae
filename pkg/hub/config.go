package hub

import (
	"flag"

	"github.com/robotalks/boost.go/pkg/ratelimit"
	"github.com/robotalks/boost.go/pkg/transport"
)

// Config defines the configurations for the hub controller.
type Config struct {
	// MaxSendRate is the number of frames per second sent to the hub.
	MaxSendRate int `yaml:"max_send_rate" env:"BOOST_MAX_SEND_RATE"`
	// MotorPower is the initial power in [0, 100] of attached motors.
	MotorPower int `yaml:"motor_power" env:"BOOST_MOTOR_POWER"`
}

var defaultConfig = Config{
	MaxSendRate: ratelimit.DefaultMaxRate,
	MotorPower:  DefaultPower,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.MaxSendRate, "max-send-rate", defaultConfig.MaxSendRate, "Max frames per second sent to hub")
	flag.IntVar(&defaultConfig.MotorPower, "motor-power", defaultConfig.MotorPower, "Initial motor power, 0-100")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewController creates a controller using the config.
func (c *Config) NewController(t transport.Transport) *Controller {
	ctl := NewController(t)
	ctl.Limiter = ratelimit.New(c.MaxSendRate)
	ctl.MotorPower = c.MotorPower
	return ctl
}
