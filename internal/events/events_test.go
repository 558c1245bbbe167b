package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

type published struct {
	channel string
	ev      *Event
}

type fakePublisher struct {
	mu     sync.Mutex
	got    []published
	closed bool
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, published{channel, ev})
	return f.err
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

func TestNotifierPublishesMembership(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = n.Run(ctx); close(done) }()

	at := time.Unix(1700000000, 0).UTC()
	n.OnMembershipChanged(domain.MembershipEvent{Room: "R1", Kind: domain.EventJoin, Who: "alice", Members: []string{"alice"}, At: at})

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := pub.snapshot()[0]
	assert.Equal(t, "meet.room.R1", got.channel)
	assert.Equal(t, TypeMembership, got.ev.Type)
	assert.Equal(t, "R1", got.ev.RoomID)
	assert.True(t, at.Equal(got.ev.Timestamp))

	var payload domain.MembershipEvent
	require.NoError(t, json.Unmarshal(got.ev.Payload, &payload))
	assert.Equal(t, "alice", payload.Who)

	cancel()
	<-done
	assert.True(t, pub.closed)
}

func TestNotifierSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("down")}
	n := NewNotifier(pub, "x")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.OnMembershipChanged(domain.MembershipEvent{Room: "R1", Kind: domain.EventLeave})
	n.OnMembershipChanged(domain.MembershipEvent{Room: "R2", Kind: domain.EventLeave})
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "x.R2", pub.snapshot()[1].channel)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(&fakePublisher{}, "")
	for range cap(n.queue) + 10 {
		n.OnMembershipChanged(domain.MembershipEvent{Room: "R1"})
	}
	assert.Len(t, n.queue, cap(n.queue))
}

func TestRedisPublisherUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisPublisher(ctx, config.EventsConfig{RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
}
