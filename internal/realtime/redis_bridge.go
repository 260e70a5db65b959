package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultOutboundBuffer = 256
	forwardTimeout        = 2 * time.Second
)

type envelope struct {
	Origin   string          `json:"origin"`
	Channels []string        `json:"channels"`
	Frame    json.RawMessage `json:"frame"`
}

// RedisBridge fans events out to hubs in other instances over Redis pub/sub.
// Outbound frames wait in a bounded queue drained by Run.
type RedisBridge struct {
	client  *redis.Client
	topic   string
	origin  string
	hub     *Hub
	out     chan envelope
	dropped atomic.Int64
	log     zerolog.Logger
}

// OpenRedis creates a client and pings it.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewRedisBridge creates a bridge. origin identifies this instance; frames
// carrying it are ignored on the way back in.
func NewRedisBridge(client *redis.Client, topic, origin string, hub *Hub, log zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		topic:  topic,
		origin: origin,
		hub:    hub,
		out:    make(chan envelope, DefaultOutboundBuffer),
		log:    log,
	}
}

// Forward queues a frame for other instances. It never blocks; a full queue
// drops the frame.
func (b *RedisBridge) Forward(frame []byte, channels []string) {
	select {
	case b.out <- envelope{Origin: b.origin, Channels: channels, Frame: frame}:
	default:
		b.dropped.Add(1)
		b.log.Debug().Msg("relay queue full, frame dropped")
	}
}

// Dropped is the number of outbound frames discarded because the queue was full.
func (b *RedisBridge) Dropped() int64 { return b.dropped.Load() }

func (b *RedisBridge) publish(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	return b.client.Publish(ctx, b.topic, payload).Err()
}

func (b *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.out:
			if err := b.publish(ctx, env); err != nil {
				b.log.Warn().Err(err).Msg("relay publish failed")
			}
		}
	}
}

// handle delivers a frame published by another instance. Frames from this
// instance were already delivered locally.
func (b *RedisBridge) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn().Err(err).Msg("bad relay envelope")
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.hub.Deliver(env.Frame, env.Channels)
}

// Run publishes queued frames and consumes the topic until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.log.Info().Str("topic", b.topic).Msg("realtime relay subscribed")

	go b.publishLoop(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}
