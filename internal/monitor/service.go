// internal/monitor/service.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/console"
	"github.com/tamzrod/rfid-monitor/internal/events"
	"github.com/tamzrod/rfid-monitor/internal/status"
	"github.com/tamzrod/rfid-monitor/internal/writer"
)

// Service holds every configured line by id.
type Service struct {
	lines []*Line
	byID  map[string]*Line
	sink  events.Sink
	log   zerolog.Logger

	closeWriters func() error
}

// New builds one pipeline per line of a validated, normalized config.
func New(c *cfg.Config, sink events.Sink, log zerolog.Logger) (*Service, error) {
	if c == nil {
		return nil, errors.New("monitor: nil config")
	}
	mem := c.Monitor.StatusMemory

	// ---- writer plans + status memory clients ----
	plans := make([]writer.Plan, 0, len(c.Monitor.Lines))
	for _, l := range c.Monitor.Lines {
		plan, err := writer.BuildPlan(l, mem)
		if err != nil {
			return nil, fmt.Errorf("writer plan failed (line=%s): %w", l.ID, err)
		}
		plans = append(plans, plan)
	}

	clients, closeWriters, err := writer.BuildEndpointClients(plans, mem)
	if err != nil {
		return nil, fmt.Errorf("writer clients failed: %w", err)
	}

	s := &Service{
		byID:         make(map[string]*Line, len(c.Monitor.Lines)),
		sink:         sink,
		log:          log,
		closeWriters: closeWriters,
	}

	// ---- lines ----
	for i, l := range c.Monitor.Lines {
		tracker := status.NewTracker()
		w := writer.New(plans[i], tracker, clients)

		line, err := BuildLine(l, w, tracker, sink, log)
		if err != nil {
			_ = closeWriters()
			return nil, err
		}
		s.add(line)
	}

	return s, nil
}

func (s *Service) add(l *Line) {
	s.lines = append(s.lines, l)
	s.byID[l.ID()] = l
}

// Lines returns the lines in configuration order.
func (s *Service) Lines() []*Line {
	return append([]*Line(nil), s.lines...)
}

// Line looks a line up by id.
func (s *Service) Line(id string) (*Line, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// Shells returns the console shell of every line, first line first.
func (s *Service) Shells() []*console.Shell {
	out := make([]*console.Shell, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, l.Shell())
	}
	return out
}

// CommandFailed publishes a console failure that happened outside Line.Console.
func (s *Service) CommandFailed(lineID string, args []string, err error) {
	if l, ok := s.byID[lineID]; ok {
		l.commandFailed(args, err)
	}
}

// Run drives every line until ctx is done, then releases the status clients.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.lines {
		wg.Add(1)
		go func(l *Line) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}

	s.log.Info().Int("lines", len(s.lines)).Msg("monitor started")
	wg.Wait()

	if s.closeWriters != nil {
		if err := s.closeWriters(); err != nil {
			s.log.Warn().Err(err).Msg("status client close failed")
		}
	}
	s.log.Info().Msg("monitor stopped")
}
