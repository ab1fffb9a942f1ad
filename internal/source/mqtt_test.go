package source

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

type fakeMessage struct{ payload []byte }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "farm/readings" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTBuffer(t *testing.T) {
	s := NewMQTT(nil, "farm/readings", 3, zerolog.Nop())

	for i := 0; i < 5; i++ {
		s.handle(nil, fakeMessage{[]byte(fmt.Sprintf(`{"device_id":"esp32-001","timestamp":%d,"temperature":%d}`, 1700000000+i*60, 20+i))})
	}
	// redelivery of the newest message
	s.handle(nil, fakeMessage{[]byte(`{"device_id":"esp32-001","timestamp":1700000240,"temperature":24}`)})

	b, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Readings) != 3 {
		t.Fatalf("buffer holds %d readings, want 3", len(b.Readings))
	}
	if b.Readings[0].Temperature != 24 || b.Readings[2].Temperature != 22 {
		t.Errorf("temperatures = %v, %v", b.Readings[0].Temperature, b.Readings[2].Temperature)
	}
}

func TestMQTTSkipped(t *testing.T) {
	s := NewMQTT(nil, "farm/readings", 10, zerolog.Nop())
	s.Ingest([]byte(`not json`))
	s.Ingest([]byte(`[{"timestamp":1,"co2":"lots"},{"timestamp":2,"co2":410}]`))

	b, _ := s.Fetch(context.Background())
	if len(b.Readings) != 1 || b.Skipped != 2 {
		t.Errorf("got %d readings, %d skipped; want 1, 2", len(b.Readings), b.Skipped)
	}

	b, _ = s.Fetch(context.Background())
	if b.Skipped != 0 {
		t.Errorf("skipped count should reset after fetch, got %d", b.Skipped)
	}
}
