// Package env assembles a hub controller from configuration.
package env

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"strings"

	envparse "github.com/caarlos0/env"
	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/hub"
	"github.com/robotalks/boost.go/pkg/transport"
	"github.com/robotalks/boost.go/pkg/transport/ble"
	"github.com/robotalks/boost.go/pkg/transport/scratchlink"
	"github.com/robotalks/boost.go/pkg/transport/sim"
	yaml "gopkg.in/yaml.v2"
)

// Transport kinds.
const (
	TransportBLE         = "ble"
	TransportScratchLink = "scratchlink"
	TransportSim         = "sim"
)

// Config provides the options to reach and drive a hub.
type Config struct {
	// Transport is one of ble, scratchlink and sim.
	Transport string `yaml:"transport" env:"BOOST_TRANSPORT"`
	// Device is the ID of the hub, the first discovered one if empty.
	Device string `yaml:"device" env:"BOOST_DEVICE"`
	// ScratchLinkURL is the websocket URL of Scratch Link.
	ScratchLinkURL string `yaml:"scratch_link_url" env:"BOOST_SCRATCH_LINK_URL"`
	// MQTTBrokerURL specifies the MQTT broker for the bridge,
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt_url" env:"BOOST_MQTT_URL"`
	// Name is the topic namespace of the hub, the machine ID if empty.
	Name string `yaml:"name" env:"BOOST_NAME"`

	Hub *hub.Config `yaml:"hub"`
}

var defaultConfig = Config{
	Transport:      TransportBLE,
	ScratchLinkURL: scratchlink.DefaultURL,
	MQTTBrokerURL:  "mqtt://localhost:1883/boost/",
	Hub:            hub.Default(),
}

var configFile string

func init() {
	if err := defaultConfig.parseEnv(); err != nil {
		glog.Warningf("environment: %v", err)
	}
}

func (c *Config) parseEnv() error {
	if err := envparse.Parse(c); err != nil {
		return err
	}
	return envparse.Parse(c.Hub)
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Transport, "transport", defaultConfig.Transport, "Transport: ble, scratchlink or sim")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Hub ID, the first discovered if empty")
	flag.StringVar(&defaultConfig.ScratchLinkURL, "scratch-link", defaultConfig.ScratchLinkURL, "Scratch Link URL")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Hub name in MQTT topics")
	flag.StringVar(&configFile, "config", configFile, "YAML config file")
	hub.SetupFlags()
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations,
// merged with the file given by -config.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	hubConf := *defaultConfig.Hub
	conf.Hub = &hubConf
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}

// LoadFile merges a YAML file into the config. Values in the file override
// flags, environment variables override both.
func (c *Config) LoadFile(fn string) error {
	data, err := ioutil.ReadFile(fn)
	if err != nil {
		return err
	}
	return c.Load(data)
}

// Load merges YAML content into the config, then the environment variables.
func (c *Config) Load(data []byte) error {
	if c.Hub == nil {
		c.Hub = hub.NewConfig()
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config error: %v", err)
	}
	return c.parseEnv()
}

// HubName returns Name or the machine ID.
func (c *Config) HubName() string {
	if c.Name != "" {
		return c.Name
	}
	return MachineID()
}

// NewTransport creates the transport by kind.
func (c *Config) NewTransport() (transport.Transport, error) {
	switch strings.ToLower(c.Transport) {
	case TransportBLE:
		return ble.New(), nil
	case TransportScratchLink:
		t := scratchlink.New()
		if c.ScratchLinkURL != "" {
			t.URL = c.ScratchLinkURL
		}
		return t, nil
	case TransportSim:
		return sim.New(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}

// NewController creates a hub controller on the configured transport.
func (c *Config) NewController() (*hub.Controller, error) {
	t, err := c.NewTransport()
	if err != nil {
		return nil, err
	}
	hubConf := c.Hub
	if hubConf == nil {
		hubConf = hub.NewConfig()
	}
	return hubConf.NewController(t), nil
}

// Connect connects the controller to Device, or the first hub discovered.
// It returns the ID of the connected hub.
func (c *Config) Connect(ctx context.Context, ctl *hub.Controller) (string, error) {
	id := c.Device
	if id == "" {
		found, err := ctl.Scan(ctx)
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			return "", transport.ErrNotFound
		}
		id = found[0].ID
		glog.Infof("found hub %s (%s)", found[0].Name, id)
	}
	if err := ctl.Connect(ctx, id); err != nil {
		return "", fmt.Errorf("connect %s error: %v", id, err)
	}
	return id, nil
}
