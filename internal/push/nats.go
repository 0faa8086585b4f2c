package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSListener delivers shadow deltas over NATS subjects. Staging
// environments publish device state there instead of the MQTT broker; the
// merge contract is identical, so both transports feed the same handler.
type NATSListener struct {
	nc      *nats.Conn
	handler Handler

	mu       sync.Mutex
	subjects map[string]*nats.Subscription
}

// NewNATSListener creates a NATS push listener over an existing
// connection.
func NewNATSListener(nc *nats.Conn, handler Handler) *NATSListener {
	return &NATSListener{
		nc:       nc,
		handler:  handler,
		subjects: make(map[string]*nats.Subscription),
	}
}

// Start blocks until the context is cancelled, then drains subscriptions.
func (l *NATSListener) Start(ctx context.Context) error {
	log.Info().Msg("NATS push listener started")

	<-ctx.Done()

	l.mu.Lock()
	for subject, sub := range l.subjects {
		sub.Unsubscribe()
		delete(l.subjects, subject)
	}
	l.mu.Unlock()

	log.Info().Msg("NATS push listener stopped")
	return ctx.Err()
}

// Subscribe starts delivery for one subject.
func (l *NATSListener) Subscribe(subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subjects[subject]; ok {
		return nil
	}

	sub, err := l.nc.Subscribe(subject, func(msg *nats.Msg) {
		log.Debug().
			Str("subject", msg.Subject).
			Int("size", len(msg.Data)).
			Msg("Shadow message received")
		l.handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	l.subjects[subject] = sub
	log.Info().Str("subject", subject).Msg("Subscribed to shadow subject")
	return nil
}
