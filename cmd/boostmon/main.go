package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"

	"github.com/robotalks/boost.go/pkg/bridge/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/boost/"
)

func init() {
	if val := os.Getenv("BOOST_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func decode(topic string, payload []byte) (string, error) {
	var msg proto.Message
	switch path.Base(topic) {
	case "cmd":
		var cmd mqtt.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return "", err
		}
		return fmt.Sprintf("%+v", cmd), nil
	case "connected", "done":
		msg = &wrappers.BoolValue{}
	case "position", "x", "y":
		msg = &wrappers.Int32Value{}
	case "device", "color", "firmware":
		msg = &wrappers.StringValue{}
	default:
		return fmt.Sprintf("%q", payload), nil
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return "", err
	}
	return proto.CompactTextString(msg), nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err = q.Connect(context.Background()); err != nil {
		log.Fatalln(err)
	}
	err = q.Subscribe("#", func(topic string, payload []byte) {
		text, err := decode(topic, payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, text)
	})
	if err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
