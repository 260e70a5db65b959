package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "servicehub:events"

func startBridge(t *testing.T, ctx context.Context, mr *miniredis.Miniredis, origin string) (*Hub, *RedisBridge) {
	t.Helper()
	client, err := OpenRedis(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	h := NewHub(nil, 8, zerolog.Nop())
	b := NewRedisBridge(client, testTopic, origin, h, zerolog.Nop())
	h.SetRelay(b)
	go func() { _ = b.Run(ctx) }()
	return h, b
}

func TestBridgeCarriesEventsBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := startBridge(t, ctx, mr, "instance-a")
	b, _ := startBridge(t, ctx, mr, "instance-b")
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(testTopic)[testTopic] == 2
	}, 2*time.Second, 10*time.Millisecond)

	local := a.Register("alice")
	require.NoError(t, a.JoinUser(local, "alice"))
	remote := b.Register("alice")
	require.NoError(t, b.JoinUser(remote, "alice"))

	a.Publish(Event{Type: EventPaymentCompleted, Data: map[string]any{"amount": 1000}}, UserChannel("alice"))

	got := pending(local)
	require.Len(t, got, 1, "local session gets the frame once")

	var remoteEvents []Event
	require.Eventually(t, func() bool {
		remoteEvents = append(remoteEvents, pending(remote)...)
		return len(remoteEvents) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventPaymentCompleted, remoteEvents[0].Type)

	// own frames come back over the topic but are not delivered twice
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, pending(local))
}

func TestForwardNeverBlocks(t *testing.T) {
	h := NewHub(nil, 8, zerolog.Nop())
	// unreachable server and no Run: nothing drains the queue
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 5 * time.Second})
	defer client.Close()
	b := NewRedisBridge(client, testTopic, "self", h, zerolog.Nop())
	b.out = make(chan envelope, 2)
	h.SetRelay(b)

	start := time.Now()
	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: EventNewMessage}, UserChannel("alice"))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(3), b.Dropped())
}

func TestRunFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	b := NewRedisBridge(client, testTopic, "self", NewHub(nil, 1, zerolog.Nop()), zerolog.Nop())
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, b.Run(ctx))
}
