// Command searchlight-monitor is a desktop console that subscribes to
// a searchlight decoder's telemetry topic and renders its signal-head
// state as it changes.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/charmbracelet/log"

	"github.com/trackside/searchlight/telemetry"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	address := flag.Uint("address", 1, "decoder accessory address to monitor")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "searchlight-monitor"})

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID(fmt.Sprintf("searchlight-monitor-%d", time.Now().UnixNano())).
		SetAutoReconnect(true)

	topic := telemetry.Topic(uint16(*address))

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("connected", "broker", *broker)
		token := c.Subscribe(topic, 0, handleMessage(logger))
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("subscribe failed", "err", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Fatal("connect failed", "err", err)
	}
	defer client.Disconnect(250)

	logger.Info("watching", "topic", topic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func handleMessage(logger *log.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		state, err := telemetry.Decode(msg.Payload())
		if err != nil {
			logger.Warn("malformed telemetry message", "err", err)
			return
		}
		printState(state)
	}
}

func printState(s telemetry.State) {
	fmt.Printf("mode=%d lastPacket=%d heads=", s.Mode, s.LastPacket)
	for i, c := range s.Heads {
		flash := ""
		if i < len(s.Flashing) && s.Flashing[i] {
			flash = "*"
		}
		fmt.Printf("[%d]rgb(%d,%d,%d)%s ", i, c.R, c.G, c.B, flash)
	}
	fmt.Println()
}
