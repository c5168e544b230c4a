package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	gwbackend "github.com/brocaar/ttn-sensor-node/internal/backend/gateway"
	"github.com/brocaar/ttn-sensor-node/internal/backend/gateway/mqtt"
	"github.com/brocaar/ttn-sensor-node/internal/band"
	"github.com/brocaar/ttn-sensor-node/internal/chipid"
	"github.com/brocaar/ttn-sensor-node/internal/config"
	"github.com/brocaar/ttn-sensor-node/internal/mac"
	"github.com/brocaar/ttn-sensor-node/internal/mac/softmac"
	"github.com/brocaar/ttn-sensor-node/internal/monitoring"
	"github.com/brocaar/ttn-sensor-node/internal/node"
	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

func run(cmd *cobra.Command, args []string) error {
	var n *node.Node

	tasks := []func() error{
		setLogLevel,
		setSyslog,
		printStartMessage,
		setupBand,
		setupMonitoring,
		setupStorage,
		setGatewayBackend,
		setupNode(&n),
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := runUntilStopped(n.Run, sigChan); err != nil {
		log.Fatal(err)
	}

	return nil
}

// runUntilStopped runs f until it returns or a signal is received. The
// gateway backend is closed once f has returned. A second signal stops
// without waiting for f.
func runUntilStopped(f func(ctx context.Context) error, sigChan <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- f(ctx)
	}()

	select {
	case err := <-doneChan:
		closeGatewayBackend()
		return err
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received")
	}

	log.Warning("stopping ttn-sensor-node")
	cancel()

	select {
	case err := <-doneChan:
		if err != nil {
			log.WithError(err).Error("node error")
		}
		closeGatewayBackend()
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return nil
}

func closeGatewayBackend() {
	if gwbackend.Backend() == nil {
		return
	}
	if err := gwbackend.Backend().Close(); err != nil {
		log.WithError(err).Error("close gateway backend error")
	}
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
		"band":    config.C.LoRaWAN.Band,
		"storage": config.C.Storage.Type,
		"sensor":  config.C.Sensor.Type,
	}).Info("starting ttn-sensor-node")
	return nil
}

func setupBand() error {
	if err := band.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup band error")
	}
	return nil
}

func setupMonitoring() error {
	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupStorage() error {
	if err := storage.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup storage error")
	}
	return nil
}

func setGatewayBackend() error {
	var err error
	var gw gwbackend.Gateway

	switch config.C.Gateway.Backend.Type {
	case "mqtt":
		gw, err = mqtt.NewBackend(config.C)
	default:
		return fmt.Errorf("unexpected gateway backend type: %s", config.C.Gateway.Backend.Type)
	}

	if err != nil {
		return errors.Wrap(err, "gateway-backend setup failed")
	}

	gwbackend.SetBackend(gw)
	return nil
}

func setupNode(n **node.Node) func() error {
	return func() error {
		id, err := chipid.Get(config.C)
		if err != nil {
			return errors.Wrap(err, "get chip id error")
		}

		reader, err := node.NewSensorReader(config.C)
		if err != nil {
			return errors.Wrap(err, "setup sensor error")
		}

		*n = node.New(config.C, id, newStack, storage.Prefs(), reader)
		return nil
	}
}

func newStack() (mac.Stack, error) {
	return softmac.New(softmac.Config{
		Band:              band.Band(),
		Gateway:           gwbackend.Backend(),
		RXWindow:          config.C.LoRaWAN.RXWindow,
		DutyCycle:         config.C.LoRaWAN.DutyCycle,
		JoinRetryInterval: config.C.LoRaWAN.JoinRetryInterval,
		MaxJoinAttempts:   config.C.LoRaWAN.MaxJoinAttempts,
	}), nil
}
