package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	prefix := flag.String("prefix", "nilm", "Topic prefix")
	flag.Parse()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("node-monitor-%d", time.Now().UnixNano()))
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var pretty map[string]any
		if err := json.Unmarshal(msg.Payload(), &pretty); err != nil {
			fmt.Printf("%s  %s (unparsed)\n", msg.Topic(), msg.Payload())
			return
		}
		out, _ := json.Marshal(pretty)
		fmt.Printf("%s  %s\n", msg.Topic(), out)
	}

	for _, t := range []string{*prefix + "/sensor/#", *prefix + "/status/#"} {
		if token := client.Subscribe(t, 0, handler); token.Wait() && token.Error() != nil {
			log.Fatalf("subscribe %s: %v", t, token.Error())
		}
		log.Printf("subscribed to %s", t)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
