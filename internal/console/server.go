// internal/console/server.go
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Server is the line-oriented TCP terminal in front of the line shells.
// Input "@<line> CMD args" selects a line; without a prefix the first line is used.
type Server struct {
	addr   string
	shells []*Shell
	byID   map[string]*Shell
	log    zerolog.Logger

	// onError, when set, sees every failed command.
	onError func(lineID string, args []string, err error)

	wg sync.WaitGroup
}

func NewServer(addr string, shells []*Shell, log zerolog.Logger) *Server {
	byID := make(map[string]*Shell, len(shells))
	for _, sh := range shells {
		byID[sh.LineID()] = sh
	}
	return &Server{
		addr:   addr,
		shells: shells,
		byID:   byID,
		log:    log,
	}
}

// OnError installs the failed-command hook. Call before Run.
func (s *Server) OnError(fn func(lineID string, args []string, err error)) {
	s.onError = fn
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("console listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts sessions on ln until ctx is done, then waits for open sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("console listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.session(ctx, conn)
		}()
	}
}

func (s *Server) session(ctx context.Context, conn net.Conn) {
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("console session opened")

	// unblock the scanner on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	out := newConnOutput(conn)
	sc := bufio.NewScanner(conn)

	for sc.Scan() {
		if s.Handle(ctx, sc.Text(), out) {
			break
		}
		if out.err != nil {
			break
		}
	}

	log.Info().Msg("console session closed")
}

// Handle runs one input line. It reports true when the session should end.
func (s *Server) Handle(ctx context.Context, input string, out Output) bool {
	args := strings.Fields(input)
	if len(args) == 0 {
		return false
	}

	switch strings.ToUpper(args[0]) {
	case "QUIT", "EXIT":
		out.Println("bye")
		return true
	}

	if len(s.shells) == 0 {
		out.Println("no lines configured")
		return false
	}

	sh := s.shells[0]
	if strings.HasPrefix(args[0], "@") {
		id := args[0][1:]
		var ok bool
		if sh, ok = s.byID[id]; !ok {
			out.Println("unknown line: " + id)
			return false
		}
		args = args[1:]
	}

	if err := sh.Exec(ctx, args, out); err != nil && s.onError != nil {
		s.onError(sh.LineID(), args, err)
	}
	return false
}

// connOutput writes CRLF-terminated text to a session.
type connOutput struct {
	w   *bufio.Writer
	err error
}

func newConnOutput(w io.Writer) *connOutput {
	return &connOutput{w: bufio.NewWriter(w)}
}

func (o *connOutput) Print(s string) {
	o.write(s)
}

func (o *connOutput) Println(s string) {
	o.write(s + "\r\n")
}

func (o *connOutput) write(s string) {
	if o.err != nil {
		return
	}
	if _, err := o.w.WriteString(s); err != nil {
		o.err = err
		return
	}
	o.err = o.w.Flush()
}
