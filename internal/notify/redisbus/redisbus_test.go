package redisbus

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecal/internal/notify"
)

func TestChannelNames(t *testing.T) {
	b := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	defer b.Close()

	assert.Equal(t, "storecal:changes:calendar_events", b.channel(notify.TableEvents))

	custom := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "tenant-a:")
	defer custom.Close()
	assert.Equal(t, "tenant-a:event_bookings", custom.channel(notify.TableBookings))
}

func TestEncodeDecode(t *testing.T) {
	in := notify.Change{Table: notify.TableEvents, BusinessID: "biz", Op: notify.OpUpdate, ID: "e1"}
	payload, err := encode(in)
	require.NoError(t, err)

	out, err := decode(string(payload))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decode("not json")
	assert.Error(t, err)
}
