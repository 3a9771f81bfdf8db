// internal/console/shell.go
package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/anchor"
	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/tags"
	"github.com/tamzrod/rfid-monitor/internal/transport"
)

// Default discovery sweep.
const (
	ScanFrom = 1
	ScanTo   = 254
)

var ErrUnknownCommand = errors.New("unknown command")

// Anchors is the device side of one line. *anchor.Reader satisfies it.
type Anchors interface {
	Scan(ctx context.Context, from, to int, opt anchor.ScanOptions) ([]anchor.Found, error)
	ReadInfo(address byte) (anchor.Descriptor, error)
	ReadTags(ctx context.Context, address byte) ([]tags.Record, error)
	SendRaw(frame []byte) ([]byte, error)
	Registry() *anchor.Registry
}

// RawLine names the port in console output. *transport.Line satisfies it.
type RawLine interface {
	Name() string
}

// Snapshots gives TAGS the reconciled view. *tags.Store satisfies it.
type Snapshots interface {
	Load() tags.Snapshot
}

// Shell runs console commands against one line.
type Shell struct {
	lineID  string
	anchors Anchors
	raw     RawLine
	snaps   Snapshots
	log     zerolog.Logger

	// ports lists serial ports for PORTS.
	ports func() ([]string, error)
}

func NewShell(lineID string, anchors Anchors, raw RawLine, snaps Snapshots, log zerolog.Logger) *Shell {
	return &Shell{
		lineID:  lineID,
		anchors: anchors,
		raw:     raw,
		snaps:   snaps,
		log:     log,
		ports:   transport.Ports,
	}
}

// LineID returns the line this shell is bound to.
func (s *Shell) LineID() string { return s.lineID }

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string, out Output) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"FIND":   {"FIND [from] [to]", "search the line for devices", (*Shell).find},
		"SEARCH": {"SEARCH [from] [to]", "same as FIND", (*Shell).find},
		"SEND":   {"SEND 0x.. 0x..", "send raw bytes (CRC appended), print the answer", (*Shell).send},
		"PORTS":  {"PORTS", "list serial ports", (*Shell).listPorts},
		"DEV":    {"DEV [addr]", "list devices, or read full info of one", (*Shell).dev},
		"POLL":   {"POLL <addr>", "read the tag buffer of one device", (*Shell).poll},
		"TAGS":   {"TAGS", "show the current tag snapshot", (*Shell).showTags},
		"HELP":   {"HELP", "this list", (*Shell).help},
		"?":      {"?", "same as HELP", (*Shell).help},
	}
}

// Exec runs one command. Failures are printed as text and also returned.
func (s *Shell) Exec(ctx context.Context, args []string, out Output) error {
	if len(args) == 0 {
		return nil
	}

	name := strings.ToUpper(args[0])
	cmd, ok := commands[name]
	if !ok {
		out.Println("unknown command: " + strings.Join(args, " "))
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}

	s.log.Debug().Str("command", name).Strs("args", args[1:]).Msg("console command")

	if err := cmd.run(s, ctx, args[1:], out); err != nil {
		out.Println("error: " + err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Shell) find(ctx context.Context, args []string, out Output) error {
	from, to := ScanFrom, ScanTo
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad start address %q", args[0])
		}
		from = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad end address %q", args[1])
		}
		to = v
	}

	out.Println("searching devices on " + s.raw.Name() + ":")

	// dots is true while the current output line holds unterminated dots
	dots := false
	endDots := func() {
		if dots {
			out.Println("")
			dots = false
		}
	}

	found, err := s.anchors.Scan(ctx, from, to, anchor.ScanOptions{
		OnProbe: func(addr byte, name string, ok bool) {
			if ok {
				endDots()
				out.Println(fmt.Sprintf("found device %q at address %d", name, addr))
				return
			}
			out.Print(".")
			dots = true
		},
		OnProgress: func(addr byte, _ int) {
			out.Print(fmt.Sprintf(" %d", addr))
			dots = true
			endDots()
		},
	})
	endDots()
	out.Println(fmt.Sprintf("found %d device(s).", len(found)))
	return err
}

func (s *Shell) send(_ context.Context, args []string, out Output) error {
	if len(args) == 0 {
		return errors.New("nothing to send")
	}

	frame := make([]byte, 0, len(args)+protocol.CRCSize)
	for _, a := range args {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("bad byte %q", a)
		}
		frame = append(frame, byte(v))
	}

	resp, err := s.anchors.SendRaw(protocol.Append(frame))
	if err != nil {
		return err
	}
	if resp == nil {
		out.Println("no data")
		return nil
	}

	hex := make([]string, len(resp))
	for i, b := range resp {
		hex[i] = fmt.Sprintf("0x%02X", b)
	}
	out.Println("RX: " + strings.Join(hex, " "))
	return nil
}

func (s *Shell) listPorts(_ context.Context, _ []string, out Output) error {
	ports, err := s.ports()
	if err != nil {
		return err
	}
	out.Println("available ports:")
	for _, p := range ports {
		out.Println(p)
	}
	return nil
}

func (s *Shell) dev(_ context.Context, args []string, out Output) error {
	if len(args) == 0 {
		devs := s.anchors.Registry().Devices()
		if len(devs) == 0 {
			out.Println("no devices")
			return nil
		}
		for _, d := range devs {
			out.Println(d.String())
		}
		return nil
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	d, err := s.anchors.ReadInfo(addr)
	if err != nil {
		return err
	}
	for _, f := range d.Fields() {
		out.Println(fmt.Sprintf("%-28s %s", f.Label, f.Value))
	}
	return nil
}

func (s *Shell) poll(ctx context.Context, args []string, out Output) error {
	if len(args) == 0 {
		return errors.New("address required")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	recs, err := s.anchors.ReadTags(ctx, addr)
	if recs != nil || err == nil {
		out.Println(fmt.Sprintf("found %d tag(s):", len(recs)))
		printTags(out, recs)
	}
	return err
}

func (s *Shell) showTags(_ context.Context, _ []string, out Output) error {
	snap := s.snaps.Load()
	out.Println(fmt.Sprintf("last %d tag(s):", len(snap.Tags)))
	printTags(out, snap.Tags)
	return nil
}

func (s *Shell) help(_ context.Context, _ []string, out Output) error {
	for _, name := range []string{"FIND", "SEARCH", "SEND", "PORTS", "DEV", "POLL", "TAGS", "HELP", "?"} {
		c := commands[name]
		out.Println(fmt.Sprintf("%-20s %s", c.usage, c.help))
	}
	return nil
}

func printTags(out Output, recs []tags.Record) {
	out.Println(fmt.Sprintf("%7s %9s %-8s", "ID", "Battery", "Flags"))
	for _, r := range recs {
		out.Println(r.String())
	}
}

func parseAddress(s string) (byte, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > 255 {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return byte(v), nil
}
