// Package broker opens MQTT connections with exponential backoff.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/config"
)

const (
	maxRetries     = 5
	maxElapsed     = 10 * time.Second
	disconnectWait = 250 // ms
)

// ClientID returns cfg.ClientID, or prefix plus a random suffix when unset.
func ClientID(cfg config.MQTTConfig, prefix string) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Options builds paho client options from the config.
func Options(cfg config.MQTTConfig, clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.BrokerUser)
	opts.SetPassword(cfg.BrokerPass)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	return opts
}

// Connect dials the broker, retrying with exponential backoff. The client is
// disconnected when ctx is cancelled.
func Connect(ctx context.Context, cfg config.MQTTConfig, clientID string, log zerolog.Logger) (mqtt.Client, error) {
	opts := Options(cfg, clientID)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	var client mqtt.Client
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		client = mqtt.NewClient(opts)
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("broker", cfg.BrokerURL()).Msg("mqtt connect failed")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("connect %s after %d attempts: %w", cfg.BrokerURL(), attempt, err)
	}

	log.Info().Str("broker", cfg.BrokerURL()).Str("client_id", clientID).Msg("mqtt connected")

	go func() {
		<-ctx.Done()
		Close(client)
	}()
	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectWait)
	}
}
