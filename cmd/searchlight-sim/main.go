// Command searchlight-sim is a bench simulator: it drives a
// decoder.Context from typed commands instead of real DCC hardware, so
// the decoding, programming, and animation logic can be exercised
// without an ATtiny85 and an LED strip on the bench.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/trackside/searchlight/config"
	"github.com/trackside/searchlight/dccpacket"
	"github.com/trackside/searchlight/decoder"
	"github.com/trackside/searchlight/nvm"
	"github.com/trackside/searchlight/program"
	"github.com/trackside/searchlight/telemetry"
)

func main() {
	storePath := flag.String("store", "", "path to a file-backed non-volatile store (default: in-memory, not persisted)")
	scenario := flag.String("scenario", "", "path to a YAML scenario file to run non-interactively")
	broker := flag.String("mqtt-broker", "", "optional host:port of an MQTT broker to mirror decoder state to")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "searchlight-sim"})

	store, err := openStore(*storePath)
	if err != nil {
		logger.Fatal("open store", "err", err)
	}

	registry := config.NewRegistry(store)
	engine := program.NewEngine(registry)

	sink := &recordingSink{}
	ackLog := ackLogger{logger: logger}
	ctx := decoder.NewContext(registry, engine, sink, ackLog)

	pub, err := telemetry.NewPublisher(context.Background(), *broker, registry.Record().Address)
	if err != nil {
		logger.Fatal("telemetry publisher", "err", err)
	}
	defer pub.Close()

	sim := &simulator{ctx: ctx, registry: registry, engine: engine, sink: sink, pub: pub, log: logger}

	if *scenario != "" {
		if err := sim.runScenario(*scenario); err != nil {
			logger.Fatal("scenario run", "err", err)
		}
		return
	}

	sim.repl(os.Stdin, os.Stdout)
}

// recordingSink is a pixel.Sink that keeps the most recently sent
// buffer, so the REPL can print it back.
type recordingSink struct {
	last []byte
}

func (s *recordingSink) Send(pixels []byte) error {
	s.last = append(s.last[:0], pixels...)
	return nil
}

// ackLogger is a decoder.AckSink that just logs the pulse, standing in
// for a real acknowledgement pin on the bench.
type ackLogger struct {
	logger *log.Logger
}

func (a ackLogger) Assert() error   { a.logger.Debug("ack pulse: asserted"); return nil }
func (a ackLogger) Deassert() error { a.logger.Debug("ack pulse: deasserted"); return nil }

func openStore(path string) (nvm.Store, error) {
	if path == "" {
		return nvm.NewMemory(config.RegionSize), nil
	}
	return nvm.OpenFile(path, config.RegionSize)
}

type simulator struct {
	ctx      *decoder.Context
	registry *config.Registry
	engine   *program.Engine
	sink     *recordingSink
	pub      *telemetry.Publisher
	log      *log.Logger
}

func (s *simulator) repl(in *os.File, out *os.File) {
	fmt.Fprintln(out, "searchlight-sim — type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintln(out, "parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit":
			return
		default:
			result, err := s.runCommand(args)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			if result != "" {
				fmt.Fprintln(out, result)
			}
		}
	}
}

// runCommand executes one tokenized command and returns text to print,
// or an error. Recognized commands:
//
//	send <hex>             feed one assembled DCC packet, as hex bytes (checksum excluded)
//	tick [n]                advance the animation/ack clock by n 20ms ticks (default 1)
//	cv read <n>              read CV n
//	cv write <n> <v>         write value v to CV n
//	pixels                   print the last composed pixel buffer, hex-encoded
//	mode                     print the current decoder mode
//	help                     list commands
func (s *simulator) runCommand(args []string) (string, error) {
	switch args[0] {
	case "help":
		return "commands: send <hex>, tick [n], cv read <n>, cv write <n> <v>, pixels, mode", nil

	case "send":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: send <hex>")
		}
		raw, err := hex.DecodeString(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid hex: %w", err)
		}
		if len(raw)+1 > 10 {
			return "", fmt.Errorf("packet too long: %d bytes", len(raw))
		}
		// The caller supplies only the data bytes; the checksum byte
		// Packet.Length/Data expect (matching what dcc.FrameAssembler
		// would have appended off the wire) is computed here.
		var checksum byte
		for _, b := range raw {
			checksum ^= b
		}
		var p dccpacket.Packet
		p.Length = uint8(len(raw) + 1)
		copy(p.Data[:], raw)
		p.Data[len(raw)] = checksum
		if err := s.ctx.HandlePacket(p); err != nil {
			return "", err
		}
		return "ok", nil

	case "tick":
		n := 1
		if len(args) == 2 {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return "", fmt.Errorf("invalid tick count: %w", err)
			}
			n = v
		}
		for i := 0; i < n; i++ {
			if err := s.ctx.Tick(20 * time.Millisecond); err != nil {
				return "", err
			}
		}
		s.publish()
		return fmt.Sprintf("ticked %d", n), nil

	case "mode":
		return modeName(s.ctx.Mode()), nil

	case "pixels":
		return hex.EncodeToString(s.sink.last), nil

	case "cv":
		return s.runCVCommand(args[1:])

	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}

func (s *simulator) runCVCommand(args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("usage: cv read <n> | cv write <n> <v>")
	}
	cv, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("invalid CV number: %w", err)
	}

	switch args[0] {
	case "read":
		v := s.registry.Read(uint16(cv))
		if v > 0xFF {
			return fmt.Sprintf("CV %d: unsupported", cv), nil
		}
		return fmt.Sprintf("CV %d = %d", cv, v), nil
	case "write":
		if len(args) != 3 {
			return "", fmt.Errorf("usage: cv write <n> <v>")
		}
		val, err := strconv.Atoi(args[2])
		if err != nil {
			return "", fmt.Errorf("invalid value: %w", err)
		}
		ok := s.registry.Write(uint16(cv), uint8(val))
		return fmt.Sprintf("CV %d write %d: ack=%v", cv, val, ok), nil
	default:
		return "", fmt.Errorf("unknown cv subcommand %q", args[0])
	}
}

func (s *simulator) publish() {
	if err := s.pub.Publish(telemetry.State{
		Mode: uint8(s.ctx.Mode()),
	}); err != nil {
		s.log.Warn("telemetry publish failed", "err", err)
	}
}

func modeName(m decoder.Mode) string {
	switch m {
	case decoder.ModeOperation:
		return "OPERATION"
	case decoder.ModeEmergencyStop:
		return "EMERGENCY_STOP"
	case decoder.ModeResetReceived:
		return "RESET_RECEIVED"
	case decoder.ModeProgramming:
		return "PROGRAMMING"
	case decoder.ModeSendingAck:
		return "SENDING_ACK"
	default:
		return "UNKNOWN"
	}
}

// scenarioFile is the YAML shape cmd/searchlight-sim accepts via
// -scenario: a flat list of the same commands the REPL understands.
type scenarioFile struct {
	Steps []string `yaml:"steps"`
}

func (s *simulator) runScenario(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	var sf scenarioFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}

	for i, line := range sf.Steps {
		args, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if len(args) == 0 {
			continue
		}
		result, err := s.runCommand(args)
		if err != nil {
			return fmt.Errorf("step %d (%q): %w", i, line, err)
		}
		s.log.Info("step", "n", i, "cmd", line, "result", result)
	}
	return nil
}
