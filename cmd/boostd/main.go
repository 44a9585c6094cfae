package main

import (
	"context"
	"flag"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/boost.go/pkg/bridge/mqtt"
	"github.com/robotalks/boost.go/pkg/env"
	fx "github.com/robotalks/boost.go/pkg/framework"
	"github.com/robotalks/boost.go/pkg/hub"
)

var (
	reconnectDelay = 3 * time.Second
	connectTimeout = 30 * time.Second
)

func init() {
	env.SetupFlags()
	flag.DurationVar(&reconnectDelay, "reconnect-delay", reconnectDelay, "Delay before reconnecting a lost hub")
}

// keepConnected connects the hub and reconnects when the link is lost.
func keepConnected(ctx context.Context, conf *env.Config, ctl *hub.Controller) error {
	lostCh := make(chan struct{}, 1)
	ctl.Subscribe(func(ev hub.Event) {
		if ev.Kind == hub.EventDisconnected {
			select {
			case lostCh <- struct{}{}:
			default:
			}
		}
	})
	for {
		select {
		case <-lostCh:
		default:
		}
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		id, err := conf.Connect(connCtx, ctl)
		cancel()
		if err == nil {
			glog.Infof("hub %s ready", id)
			select {
			case <-ctx.Done():
				disconnCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				ctl.Disconnect(disconnCtx)
				cancel()
				return ctx.Err()
			case <-lostCh:
				glog.Warningf("hub %s lost", id)
			}
		} else {
			glog.Errorf("connect hub: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func main() {
	flag.Parse()

	conf, err := env.NewConfig()
	if err != nil {
		glog.Exit(err)
	}
	ctl, err := conf.NewController()
	if err != nil {
		glog.Exit(err)
	}
	q, err := mqtt.NewQueueFromURL(conf.MQTTBrokerURL)
	if err != nil {
		glog.Exitf("MQTT broker %q: %v", conf.MQTTBrokerURL, err)
	}
	bridge := mqtt.NewBridge(conf.HubName(), ctl, q)
	loop := fx.NewLoop().Add(ctl)

	runner := fx.NewRunner().HandleSignals()
	if err := q.Connect(runner.Context); err != nil {
		glog.Exitf("connect MQTT broker: %v", err)
	}
	defer q.Close()
	if err := bridge.Start(); err != nil {
		glog.Exitf("start bridge: %v", err)
	}
	glog.Infof("bridging hub %s", bridge.Name)

	err = runner.Go(
		fx.NamedRun("loop", loop),
		fx.NamedRun("hub", fx.RunFunc(func(ctx context.Context) error {
			return keepConnected(ctx, conf, ctl)
		})),
	).Wait()
	if err != nil {
		glog.Error(err)
	}
}
