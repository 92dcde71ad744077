package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  relayctl --device DEVICE [actions...]

Actions (at least one):
  --ch1      (on|off)   Set channel 1
  --ch2      (on|off)   Set channel 2
  --toggle1             Toggle channel 1
  --toggle2             Toggle channel 2
  --all      (on|off)   Force both channels

Optional flags:
  --broker   (string)   MQTT broker address (default: tcp://localhost:1883)
  --prefix   (string)   Topic prefix (default: nilm)

`)
	flag.PrintDefaults()
}

func parseOnOff(name, v string) (bool, bool) {
	switch v {
	case "":
		return false, false
	case "on":
		return true, true
	case "off":
		return false, true
	}
	fmt.Fprintf(os.Stderr, "--%s must be 'on' or 'off'\n", name)
	usage()
	os.Exit(2)
	return false, false
}

func main() {
	device := flag.String("device", "", "Device id (required)")
	ch1 := flag.String("ch1", "", "Set channel 1 (on|off)")
	ch2 := flag.String("ch2", "", "Set channel 2 (on|off)")
	toggle1 := flag.Bool("toggle1", false, "Toggle channel 1")
	toggle2 := flag.Bool("toggle2", false, "Toggle channel 2")
	all := flag.String("all", "", "Force both channels (on|off)")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	prefix := flag.String("prefix", "nilm", "Topic prefix")
	flag.Usage = usage
	flag.Parse()

	if *device == "" {
		fmt.Fprintf(os.Stderr, "--device is required\n")
		usage()
		os.Exit(2)
	}

	payload := map[string]any{}
	if v, ok := parseOnOff("ch1", *ch1); ok {
		payload["relay_ch1"] = v
	}
	if v, ok := parseOnOff("ch2", *ch2); ok {
		payload["relay_ch2"] = v
	}
	if *toggle1 {
		payload["toggle_ch1"] = 1
	}
	if *toggle2 {
		payload["toggle_ch2"] = 1
	}
	if v, ok := parseOnOff("all", *all); ok {
		if v {
			payload["all_on"] = 1
		} else {
			payload["all_off"] = 1
		}
	}
	if len(payload) == 0 {
		fmt.Fprintf(os.Stderr, "no action given\n")
		usage()
		os.Exit(2)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("relayctl-%d", time.Now().UnixNano()))
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Fprintf(os.Stderr, "MQTT connect error: %v\n", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	topic := fmt.Sprintf("%s/command/%s", *prefix, *device)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON marshal error: %v\n", err)
		os.Exit(1)
	}
	token := client.Publish(topic, 0, false, payloadBytes)
	token.Wait()
	if token.Error() != nil {
		fmt.Fprintf(os.Stderr, "MQTT publish error: %v\n", token.Error())
		os.Exit(1)
	}

	fmt.Printf("Command published to %s: %s\n", topic, payloadBytes)
}
