package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("requires brokers", func(t *testing.T) {
		client, err := NewClient(Config{})
		require.Error(t, err)
		assert.Nil(t, client)
	})

	t.Run("builds lazily without a reachable broker", func(t *testing.T) {
		client, err := NewClient(Config{
			Brokers:  []string{"127.0.0.1:1"},
			ClientID: "elibrary-users-test",
			Linger:   5 * time.Millisecond,
		})
		require.NoError(t, err)
		require.NotNil(t, client)
		client.Close()
	})
}
