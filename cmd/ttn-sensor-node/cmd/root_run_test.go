package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	gwbackend "github.com/brocaar/ttn-sensor-node/internal/backend/gateway"
	"github.com/brocaar/ttn-sensor-node/internal/test"
)

func TestRunUntilStopped(t *testing.T) {
	t.Run("Node returns", func(t *testing.T) {
		assert := require.New(t)

		gw := test.NewGatewayBackend()
		gwbackend.SetBackend(gw)

		err := runUntilStopped(func(ctx context.Context) error {
			return errors.New("session setup error")
		}, make(chan os.Signal))
		assert.EqualError(err, "session setup error")
		assert.True(gw.Closed)
	})

	t.Run("Signal", func(t *testing.T) {
		assert := require.New(t)

		gw := test.NewGatewayBackend()
		gwbackend.SetBackend(gw)

		sigChan := make(chan os.Signal, 1)
		sigChan <- syscall.SIGTERM

		var canceled bool
		err := runUntilStopped(func(ctx context.Context) error {
			<-ctx.Done()
			canceled = true
			return nil
		}, sigChan)
		assert.NoError(err)
		assert.True(canceled)
		assert.True(gw.Closed)
	})
}
