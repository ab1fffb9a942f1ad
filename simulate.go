package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/broker"
	"github.com/luki/farmdash/internal/config"
	"github.com/luki/farmdash/internal/logger"
	"github.com/luki/farmdash/internal/simulator"
)

const (
	defaultSimDuration = 60 * time.Second
	defaultSimInterval = 5 * time.Second
)

// runSimulate publishes generated readings until the duration elapses or
// Ctrl+C. A zero duration runs until interrupted.
func runSimulate(ctx context.Context, cfg *config.Config, args []string, log zerolog.Logger) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		printSimulateHelp()
		return nil
	}
	duration, interval, err := simulator.ParseArgs(args, defaultSimDuration, defaultSimInterval)
	if err != nil {
		printSimulateHelp()
		return err
	}

	client, err := broker.Connect(ctx, cfg.MQTT, broker.ClientID(cfg.MQTT, "farmdash-sim"), logger.Component(log, "broker"))
	if err != nil {
		return err
	}
	defer broker.Close(client)

	if duration > 0 {
		fmt.Printf("Simulating %s on %s for %s, every %s\n", cfg.MQTT.DeviceID, cfg.MQTT.Topic, duration, interval)
	} else {
		fmt.Printf("Simulating %s on %s every %s\n", cfg.MQTT.DeviceID, cfg.MQTT.Topic, interval)
	}
	fmt.Println("Press Ctrl+C to stop early")

	g := simulator.NewGenerator(cfg.MQTT.DeviceID, time.Now().UnixNano())
	sent, err := simulator.Run(ctx, g, simulator.MQTTPublisher{Client: client}, simulator.Options{
		Topic:    cfg.MQTT.Topic,
		Interval: interval,
		Duration: duration,
	}, logger.Component(log, "simulator"))
	fmt.Printf("  done, %d messages published\n", sent)
	return err
}

func printSimulateHelp() {
	fmt.Println("Usage: farmdash simulate [duration] [interval]")
	fmt.Println()
	fmt.Println("Duration: e.g. '60' (seconds), '2m', '30s', '0' runs until Ctrl+C (default: 60s)")
	fmt.Println("Interval: time between messages (default: 5s)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  farmdash simulate")
	fmt.Println("  farmdash simulate 2m 1s")
	fmt.Println("  farmdash simulate 0")
}
