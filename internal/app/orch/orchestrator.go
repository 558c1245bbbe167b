package orch

import (
	"context"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// DefaultBacklogThreshold is the outstanding byte count above which video frames are skipped.
const DefaultBacklogThreshold = 3 << 20

// MembershipListener observes the hub. Calls arrive on the reactor goroutine and must not block.
type MembershipListener interface {
	OnMembershipChanged(ev domain.MembershipEvent)
	OnMessage(room domain.RoomName, sender string, msg protocol.Message)
}

type eventKind int

const (
	evConnect eventKind = iota
	evDeliver
	evDisconnect
)

type event struct {
	kind   eventKind
	sid    core.SessionID
	conn   core.SignalConnection
	cancel context.CancelFunc
	msgs   []protocol.Message
}

// Orchestrator is the hub reactor: every session event is applied by Run, one at a time.
type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Limiter   *app.JoinRateLimiter
	Metrics   *metrics.Metrics
	Threshold int

	listeners []MembershipListener
	events    chan event
	done      chan struct{}
}

func New(registry *app.Registry, rooms core.RoomManager, policy app.Policy) *Orchestrator {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Orchestrator{
		Registry:  registry,
		Rooms:     rooms,
		Policy:    policy,
		Threshold: DefaultBacklogThreshold,
		events:    make(chan event, 1024),
		done:      make(chan struct{}),
	}
}

// AddListener must be called before Run.
func (o *Orchestrator) AddListener(l MembershipListener) {
	o.listeners = append(o.listeners, l)
}

// Run applies submitted events until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("reactor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("reactor stopped")
			return nil
		case ev := <-o.events:
			o.apply(ev)
		}
	}
}

func (o *Orchestrator) apply(ev event) {
	switch ev.kind {
	case evConnect:
		o.handleConnect(ev.sid, ev.conn, ev.cancel)
	case evDeliver:
		for _, m := range ev.msgs {
			o.handleMessage(ev.sid, m)
		}
	case evDisconnect:
		o.handleDisconnect(ev.sid)
	}
}

func (o *Orchestrator) submit(ev event) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	}
}

// Connect registers a transport session. cancel stops its read/write goroutines.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) bool {
	return o.submit(event{kind: evConnect, sid: sid, conn: conn, cancel: cancel})
}

// Deliver hands decoded messages of sid to the reactor, preserving their order.
func (o *Orchestrator) Deliver(sid core.SessionID, msgs []protocol.Message) bool {
	if len(msgs) == 0 {
		return true
	}
	return o.submit(event{kind: evDeliver, sid: sid, msgs: msgs})
}

// Disconnect tears down sid. Messages delivered before it are still applied.
func (o *Orchestrator) Disconnect(sid core.SessionID) bool {
	return o.submit(event{kind: evDisconnect, sid: sid})
}

func (o *Orchestrator) handleConnect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(sid, conn, cancel)
	o.Metrics.SetSessions(o.Registry.Count())
}

func (o *Orchestrator) handleDisconnect(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.leaveRoom(sess, true)
	o.Registry.Unbind(sid)
	o.Limiter.Forget(sid)
	sess.Signal().Close()
	o.Metrics.SetSessions(o.Registry.Count())
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session disconnected")
}

func (o *Orchestrator) notifyMembership(ev domain.MembershipEvent) {
	for _, l := range o.listeners {
		l.OnMembershipChanged(ev)
	}
}

func (o *Orchestrator) notifyMessage(room domain.RoomName, sender string, msg protocol.Message) {
	for _, l := range o.listeners {
		l.OnMessage(room, sender, msg)
	}
}
