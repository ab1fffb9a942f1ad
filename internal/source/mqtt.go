package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/dedup"
	"github.com/luki/farmdash/internal/reading"
)

// MQTT keeps the newest readings received on a topic. A message holds one
// JSON object or an array of them. Redelivered payloads are ignored.
type MQTT struct {
	client mqtt.Client
	topic  string
	limit  int
	seen   *dedup.Deduper
	log    zerolog.Logger

	mu      sync.Mutex
	buf     []reading.Reading // oldest first
	skipped int
}

// NewMQTT creates the buffer; call Start to subscribe.
func NewMQTT(client mqtt.Client, topic string, limit int, log zerolog.Logger) *MQTT {
	if limit <= 0 {
		limit = 200
	}
	return &MQTT{
		client: client,
		topic:  topic,
		limit:  limit,
		seen:   dedup.New(0, 0),
		log:    log,
	}
}

func (s *MQTT) Name() string { return "mqtt:" + s.topic }

// Start subscribes to the topic and unsubscribes when ctx is done.
func (s *MQTT) Start(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, 1, s.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.log.Info().Str("topic", s.topic).Msg("subscribed")

	go func() {
		<-ctx.Done()
		if s.client.IsConnected() {
			s.client.Unsubscribe(s.topic)
		}
	}()
	return nil
}

func (s *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	s.Ingest(msg.Payload())
}

// Ingest adds one message payload to the buffer.
func (s *MQTT) Ingest(payload []byte) {
	if !s.seen.Fresh(payload) {
		s.log.Debug().Msg("duplicate payload dropped")
		return
	}

	rows, err := decodeMessage(payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("bad mqtt payload")
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		return
	}
	b := normalize(rows, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped += b.Skipped
	s.buf = append(s.buf, b.Readings...)
	if over := len(s.buf) - s.limit; over > 0 {
		s.buf = append(s.buf[:0:0], s.buf[over:]...)
	}
}

// Fetch returns a copy of the buffer, newest first. The skipped count covers
// messages dropped since the previous fetch.
func (s *MQTT) Fetch(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	s.mu.Lock()
	out := make([]reading.Reading, len(s.buf))
	copy(out, s.buf)
	skipped := s.skipped
	s.skipped = 0
	s.mu.Unlock()

	reading.SortNewestFirst(out)
	return Batch{Readings: out, Skipped: skipped}, nil
}

func decodeMessage(payload []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}, nil
	case []any:
		return objects(x)
	}
	return nil, fmt.Errorf("%w: expected object, got %T", ErrDecode, v)
}
