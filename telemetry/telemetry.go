// Package telemetry mirrors decoder state to an MQTT broker for bench
// observability. It is purely a fire-and-forget sink: nothing in the
// decoder ever reads from it, so it cannot become the kind of
// bidirectional back-channel this project's Railcom Non-goal excludes
// (SPEC_FULL.md §1, "» ADDED — Domain stack wiring").
package telemetry

import (
	"context"
	"fmt"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"github.com/trackside/searchlight/colors"
	"github.com/trackside/searchlight/dccpacket"
)

// State is one tick's worth of decoder state, as handed to Publisher by
// the bench harness driving decoder.Context.
type State struct {
	Mode       uint8
	Heads      []colors.RGB
	Flashing   []bool
	LastPacket dccpacket.Kind
}

// messageLen returns the fixed wire size for n signal heads: 1 mode
// byte, 1 last-packet-kind byte, then 4 bytes per head (R, G, B,
// flashing-as-0-or-1).
func messageLen(n int) int { return 2 + 4*n }

// encode lays out s into the fixed, JSON-free byte format described in
// SPEC_FULL.md — deliberately not self-describing, since both ends of
// this link are built together and a fixed-layout, versionless blob
// keeps the wire format as small as the embedded side it originates
// from would produce.
func encode(s State) []byte {
	buf := make([]byte, messageLen(len(s.Heads)))
	buf[0] = s.Mode
	buf[1] = uint8(s.LastPacket)
	for i, c := range s.Heads {
		off := 2 + 4*i
		buf[off] = c.R
		buf[off+1] = c.G
		buf[off+2] = c.B
		if i < len(s.Flashing) && s.Flashing[i] {
			buf[off+3] = 1
		}
	}
	return buf
}

// Decode parses a message produced by encode, for use by monitor-side
// consumers (cmd/searchlight-monitor, cmd/searchlight-webmonitor).
func Decode(b []byte) (State, error) {
	if len(b) < 2 || (len(b)-2)%4 != 0 {
		return State{}, fmt.Errorf("telemetry: malformed message, %d bytes", len(b))
	}
	n := (len(b) - 2) / 4
	s := State{
		Mode:       b[0],
		LastPacket: dccpacket.Kind(b[1]),
		Heads:      make([]colors.RGB, n),
		Flashing:   make([]bool, n),
	}
	for i := 0; i < n; i++ {
		off := 2 + 4*i
		s.Heads[i] = colors.RGB{R: b[off], G: b[off+1], B: b[off+2]}
		s.Flashing[i] = b[off+3] != 0
	}
	return s, nil
}

// Topic returns the MQTT topic a decoder at the given accessory
// address publishes its state to.
func Topic(address uint16) string {
	return fmt.Sprintf("searchlight/%d/state", address)
}

// Publisher mirrors State values to an MQTT broker, using
// natiu-mqtt — the embedded-lean client in the retrieval pack, a
// natural fit alongside the rest of this module's constrained-target
// character. A Publisher with no broker configured is inert: Publish
// is then a no-op, matching "off by default".
type Publisher struct {
	address uint16
	client  *mqtt.Client
	connCfg mqtt.ConnectParams
}

// NewPublisher dials broker (host:port, plain TCP) and prepares a
// publisher for the given decoder accessory address. If broker is
// empty, the returned Publisher is inert and Publish always succeeds
// without sending anything.
func NewPublisher(ctx context.Context, broker string, address uint16) (*Publisher, error) {
	if broker == "" {
		return &Publisher{address: address}, nil
	}

	conn, err := net.DialTimeout("tcp", broker, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial %s: %w", broker, err)
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
	})
	clientID := []byte(fmt.Sprintf("searchlight-%d", address))
	connCfg := mqtt.ConnectParams{
		ClientID:     clientID,
		CleanSession: true,
		KeepAlive:    30,
	}
	if err := client.Connect(ctx, conn, &connCfg); err != nil {
		return nil, fmt.Errorf("telemetry: connect: %w", err)
	}

	return &Publisher{address: address, client: client, connCfg: connCfg}, nil
}

// Publish sends one state snapshot, best-effort: publish errors are
// returned to the caller (a bench harness may choose to log and
// continue, since telemetry is never load-bearing for decoding).
func (p *Publisher) Publish(s State) error {
	if p.client == nil {
		return nil
	}
	var flags mqtt.PublishFlags
	flags, _ = flags.SetQoS(mqtt.QoS0)
	vars := mqtt.VariablesPublish{
		TopicName: []byte(Topic(p.address)),
	}
	return p.client.PublishPayload(flags, vars, encode(s))
}

// Close disconnects the underlying MQTT client, if one was established.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Disconnect(fmt.Errorf("telemetry: publisher closing"))
}
