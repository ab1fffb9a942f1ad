package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTPublisher publishes with QoS 1.
type MQTTPublisher struct {
	Client mqtt.Client
}

func (p MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.Client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Options controls a simulation run.
type Options struct {
	Topic    string
	Interval time.Duration
	Duration time.Duration // zero runs until ctx is done
}

// Run publishes one reading per interval until the duration elapses or ctx
// is cancelled. It returns the number of messages published.
func Run(ctx context.Context, g *Generator, pub Publisher, opts Options, log zerolog.Logger) (int, error) {
	if opts.Interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	sent := 0
	for {
		msg := g.Next(time.Now())
		payload, err := json.Marshal(msg)
		if err != nil {
			return sent, err
		}
		if err := pub.Publish(opts.Topic, payload); err != nil {
			log.Warn().Err(err).Msg("publish failed")
		} else {
			sent++
			log.Debug().RawJSON("payload", payload).Msg("published")
		}

		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
}

// ParseArgs reads "[duration] [interval]". Each accepts a Go duration or a
// plain number of seconds.
func ParseArgs(args []string, defDuration, defInterval time.Duration) (duration, interval time.Duration, err error) {
	duration, interval = defDuration, defInterval
	if len(args) > 0 {
		if duration, err = parseDuration(args[0]); err != nil {
			return 0, 0, fmt.Errorf("duration: %w", err)
		}
	}
	if len(args) > 1 {
		if interval, err = parseDuration(args[1]); err != nil {
			return 0, 0, fmt.Errorf("interval: %w", err)
		}
		if interval <= 0 {
			return 0, 0, fmt.Errorf("interval must be positive")
		}
	}
	return duration, interval, nil
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
