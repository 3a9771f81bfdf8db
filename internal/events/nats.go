// internal/events/nats.go
package events

import (
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// publisher is the part of *nats.Conn the sink needs.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes every event as JSON on <subject>.<line>.<type>.
type NATSSink struct {
	pub     publisher
	subject string
	log     zerolog.Logger
}

func NewNATSSink(pub publisher, subject string, log zerolog.Logger) *NATSSink {
	return &NATSSink{pub: pub, subject: subject, log: log}
}

// ConnectNATS dials the server and returns a sink plus a close func.
// The connection reconnects forever in the background.
func ConnectNATS(url, subject string, log zerolog.Logger) (*NATSSink, func(), error) {
	nc, err := nats.Connect(
		url,
		nats.Name("rfid-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	closeFn := func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return NewNATSSink(nc, subject, log), closeFn, nil
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(e Event) string {
	return s.subject + "." + e.Line + "." + string(e.Type)
}

func (s *NATSSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(e.Type)).Msg("event marshal failed")
		return
	}
	if err := s.pub.Publish(s.Subject(e), data); err != nil {
		s.log.Warn().Err(err).Str("subject", s.Subject(e)).Msg("unable to publish to nats server")
	}
}
