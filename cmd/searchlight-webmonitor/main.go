// Command searchlight-webmonitor serves the same telemetry
// searchlight-monitor consumes, over a websocket, to a browser tab — a
// second observability surface sharing telemetry's encoding, not a
// second protocol engine.
package main

import (
	"flag"
	"net/http"
	"os"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/net/websocket"

	"github.com/charmbracelet/log"

	"github.com/trackside/searchlight/telemetry"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	address := flag.Uint("address", 1, "decoder accessory address to monitor")
	listen := flag.String("listen", ":8089", "HTTP listen address")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "searchlight-webmonitor"})

	hub := newHub()

	topic := telemetry.Topic(uint16(*address))
	opts := mqtt.NewClientOptions().AddBroker(*broker).SetClientID("searchlight-webmonitor")
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("connected to broker", "broker", *broker)
		token := c.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			hub.broadcast(msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("subscribe failed", "err", err)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Fatal("mqtt connect failed", "err", err)
	}
	defer client.Disconnect(250)

	http.Handle("/ws", websocket.Handler(hub.serve))
	logger.Info("listening", "addr", *listen)
	if err := http.ListenAndServe(*listen, nil); err != nil {
		logger.Fatal("http server", "err", err)
	}
}

// hub fans out each telemetry message received from MQTT to every
// connected websocket client.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *hub) serve(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ws)
		h.mu.Unlock()
		ws.Close()
	}()

	// Block until the client disconnects; this connection only ever
	// receives broadcasts, it never sends anything meaningful back (no
	// back-channel is implied by this — see the Railcom Non-goal).
	buf := make([]byte, 1)
	for {
		if _, err := ws.Read(buf); err != nil {
			return
		}
	}
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		if _, err := ws.Write(payload); err != nil {
			ws.Close()
			delete(h.clients, ws)
		}
	}
}
