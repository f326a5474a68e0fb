package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/thingsmqtt/internal/rpc"
)

var strategies = []string{mqtt.StrategySingleThread, mqtt.StrategyThreaded}

// newWiredController runs a Controller over a real connection strategy
// backed by an in-memory paho client.
func newWiredController(t *testing.T, strategy string, opts ...Option) (*Controller, *pahoFactory) {
	t.Helper()
	f := &pahoFactory{}
	conn, err := mqtt.New(strategy,
		mqtt.WithClientFactory(f.newClient),
		mqtt.WithIOTimeout(10*time.Millisecond),
		mqtt.WithRetryBackoff(5*time.Millisecond, 20*time.Millisecond),
	)
	require.NoError(t, err)

	opts = append([]Option{WithClock(stepClock())}, opts...)
	c := New(conn, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, f
}

// loopUntil calls Loop on the test goroutine until cond holds.
func loopUntil(t *testing.T, c *Controller, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.NoError(t, c.Loop())
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func telemetryValues(t *testing.T, ps []published) []float64 {
	t.Helper()
	var out []float64
	for _, p := range onTopic(ps, mqtt.TopicTelemetry) {
		_, values := decodeEnvelope(t, p)
		out = append(out, values["temp"].(float64))
	}
	return out
}

func TestWiredQueuedTelemetryReplayedOnConnect(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			c, f := newWiredController(t, strategy)

			require.NoError(t, c.SetAttribute("firmware", "1.0"))
			for i := 1; i <= 3; i++ {
				require.NoError(t, c.PublishTelemetry("temp", i))
				_, err := c.Send()
				require.NoError(t, err)
			}
			require.Equal(t, 3, c.PendingCount())

			require.NoError(t, c.Connect(Config{Host: "broker.local", Port: 1883}))
			loopUntil(t, c, "replay", func() bool {
				return c.IsConnected() && c.PendingCount() == 0
			})

			require.NoError(t, c.PublishTelemetry("temp", 4))
			sent, err := c.Send()
			require.NoError(t, err)
			assert.True(t, sent)

			wire := f.last(t).wire()
			require.Len(t, wire, 5)
			assert.Equal(t, mqtt.TopicAttributes, wire[0].Topic, "snapshot goes first")
			assert.Equal(t, map[string]any{"firmware": "1.0"}, decodeObject(t, wire[0]))
			assert.Equal(t, []float64{1, 2, 3, 4}, telemetryValues(t, wire))

			var last int64
			for _, p := range wire[1:] {
				ts, _ := decodeEnvelope(t, p)
				assert.Greater(t, ts, last, "timestamps keep capture order")
				last = ts
			}
		})
	}
}

func TestWiredReconnectSendsOneSnapshotThenBacklog(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			c, f := newWiredController(t, strategy)

			require.NoError(t, c.SetAttribute("firmware", "1.0"))
			require.NoError(t, c.Connect(Config{Host: "broker.local", Port: 1883}))
			loopUntil(t, c, "connect", func() bool {
				return c.IsConnected() && len(f.last(t).wire()) == 1
			})
			_, err := c.Send()
			require.NoError(t, err)

			client := f.last(t)
			client.drop()
			loopUntil(t, c, "disconnect", func() bool { return !c.IsConnected() })

			require.NoError(t, c.PublishTelemetry("temp", 5))
			require.NoError(t, c.SetAttribute("firmware", "1.1"))
			require.NoError(t, c.SetAttribute("mode", "eco"))
			_, err = c.Send()
			require.NoError(t, err)
			require.Equal(t, 1, c.PendingCount())

			mark := len(client.wire())
			client.reconnect()
			loopUntil(t, c, "replay", func() bool {
				return c.IsConnected() && c.PendingCount() == 0
			})

			after := client.wire()[mark:]
			require.Len(t, after, 2)
			require.Len(t, onTopic(after, mqtt.TopicAttributes), 1, "exactly one snapshot")
			assert.Equal(t, mqtt.TopicAttributes, after[0].Topic)
			assert.Equal(t, map[string]any{"firmware": "1.1", "mode": "eco"}, decodeObject(t, after[0]))
			assert.Equal(t, []float64{5}, telemetryValues(t, after))

			sent, err := c.Send()
			require.NoError(t, err)
			assert.False(t, sent, "snapshot cleared the attribute dirty set")
		})
	}
}

func TestWiredRPCRoundTrip(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			c, f := newWiredController(t, strategy, WithRPC(rpc.Topics{}))
			c.AddRPCHandler(func(method string, _ any) (any, error) {
				if method != "ping" {
					return nil, rpc.ErrNotHandled
				}
				return "pong", nil
			})

			require.NoError(t, c.Connect(Config{Host: "broker.local", Port: 1883}))
			loopUntil(t, c, "connect", c.IsConnected)

			client := f.last(t)
			assert.Equal(t, []string{"v1/devices/me/rpc/request/+"}, client.subscriptions())

			client.deliver("v1/devices/me/rpc/request/7", `{"method":"ping","params":{}}`)
			response := "v1/devices/me/rpc/response/7"
			loopUntil(t, c, "rpc response", func() bool {
				return len(onTopic(client.wire(), response)) == 1
			})
			assert.Equal(t, `"pong"`, string(onTopic(client.wire(), response)[0].Payload))
		})
	}
}
