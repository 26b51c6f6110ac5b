// Package redisbus is a notify.Bus over Redis pub/sub, so several storecal
// processes sharing one database see each other's writes.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	appLog "storecal/internal/log"
	"storecal/internal/notify"
)

const defaultPrefix = "storecal:changes:"

type Bus struct {
	client *redis.Client
	prefix string
}

var _ notify.Bus = (*Bus)(nil)

// Dial connects to redisURL (redis://...) and checks the server answers.
func Dial(ctx context.Context, redisURL string) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Older servers reject the maint_notifications handshake.
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return New(client, ""), nil
}

// New wraps an existing client. An empty prefix uses "storecal:changes:".
func New(client *redis.Client, prefix string) *Bus {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Bus{client: client, prefix: prefix}
}

func (b *Bus) Close() error {
	return b.client.Close()
}

func (b *Bus) channel(table string) string {
	return b.prefix + table
}

func encode(c notify.Change) ([]byte, error) {
	return json.Marshal(c)
}

func decode(payload string) (notify.Change, error) {
	var c notify.Change
	err := json.Unmarshal([]byte(payload), &c)
	return c, err
}

func (b *Bus) Publish(ctx context.Context, c notify.Change) error {
	payload, err := encode(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(c.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe starts a goroutine that forwards messages to fn until the
// returned func is called. An empty table pattern-subscribes to all tables.
func (b *Bus) Subscribe(table string, fn notify.Handler) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	var ps *redis.PubSub
	if table == "" {
		ps = b.client.PSubscribe(ctx, b.prefix+"*")
	} else {
		ps = b.client.Subscribe(ctx, b.channel(table))
	}
	// Wait for the subscription confirmation so publishes made right after
	// Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %q: %w", table, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			c, err := decode(msg.Payload)
			if err != nil {
				appLog.Error("redisbus: dropping malformed change", err, "channel", msg.Channel)
				continue
			}
			if c.Table == "" {
				c.Table = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			fn(c)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			<-done
		})
	}, nil
}
