package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/domain"
)

const (
	commandTimeout       = 5 * time.Second
	stopTimeout          = 10 * time.Second
	commandQueueSize     = 256
	commandQueueWarnMark = 200
	shutdownReason       = "server shutting down"
)

var ErrStopped = errors.New("broadcaster stopped")

type eventSubscribers map[Sink]*subscriber

type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	eventID uuid.UUID
	sink    Sink
	ack     []byte
	reply   chan registerReply
}

type registerReply struct {
	exited <-chan struct{}
	err    error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	eventID uuid.UUID
	sink    Sink
}

type publishCmd struct {
	baseBroadcasterCmd
	eventID uuid.UUID
	data    []byte
}

type subscriberCountCmd struct {
	baseBroadcasterCmd
	eventID uuid.UUID
	reply   chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster keeps the subscriber registry for every event and fans published messages out to it.
type Broadcaster struct {
	cmdCh             chan broadcasterCmd
	clock             clockwork.Clock
	metrics           *metrics.StreamMetrics
	events            map[uuid.UUID]eventSubscribers
	onFirstSubscriber func(eventID uuid.UUID)
	onEventEmpty      func(eventID uuid.UUID)
	done              chan struct{}
	stopOnce          sync.Once
	stopTimeout       time.Duration
	maxPerEvent       int
}

// NewBroadcaster starts the broadcaster goroutine.
// onFirstSubscriber runs when an event gains its first subscriber, onEventEmpty when it loses the last one.
// Both run on the broadcaster goroutine and must not block or call back into the Broadcaster.
// maxPerEvent caps concurrent subscribers per event.
func NewBroadcaster(onFirstSubscriber, onEventEmpty func(uuid.UUID), clock clockwork.Clock, m *metrics.StreamMetrics, maxPerEvent int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:             make(chan broadcasterCmd, commandQueueSize),
		clock:             clock,
		metrics:           m,
		events:            make(map[uuid.UUID]eventSubscribers),
		onFirstSubscriber: onFirstSubscriber,
		onEventEmpty:      onEventEmpty,
		done:              make(chan struct{}),
		stopTimeout:       stopTimeout,
		maxPerEvent:       maxPerEvent,
	}
	go b.run()
	return b
}

// Register subscribes sink to eventID. The sink receives a connection message first and
// then every message published afterwards; nothing published earlier is replayed.
// The returned channel is closed when the sink's writer exits, for whatever reason.
// The caller keeps ownership of sink when an error is returned.
func (b *Broadcaster) Register(eventID uuid.UUID, sink Sink) (<-chan struct{}, error) {
	ack, err := json.Marshal(domain.NewConnectionMessage(eventID, b.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connection message: %w", err)
	}

	replyCh := make(chan registerReply, 1)
	if !b.send(registerCmd{eventID: eventID, sink: sink, ack: ack, reply: replyCh}) {
		return nil, ErrStopped
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-replyCh:
		return r.exited, r.err
	case <-b.done:
		return nil, ErrStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes sink and stops its writer. Unknown sinks are ignored.
func (b *Broadcaster) Unregister(eventID uuid.UUID, sink Sink) {
	b.send(unregisterCmd{eventID: eventID, sink: sink})
}

// Publish delivers msg to every current subscriber of eventID without waiting on any of them.
func (b *Broadcaster) Publish(eventID uuid.UUID, msg domain.StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal stream message", "event_id", eventID.String(), "error", err)
		return
	}
	b.send(publishCmd{eventID: eventID, data: data})
}

// SubscriberCount returns the number of subscribers of eventID, or -1 if the broadcaster did not answer.
func (b *Broadcaster) SubscriberCount(eventID uuid.UUID) int {
	replyCh := make(chan int, 1)
	if !b.send(subscriberCountCmd{eventID: eventID, reply: replyCh}) {
		return -1
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-b.done:
		return -1
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every subscriber with a shutdown notice and waits for the broadcaster to exit.
// Safe to call more than once.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		if !b.send(stopCmd{}) {
			return
		}

		timeout := b.clock.NewTimer(b.stopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
		}
	})
}

func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.metrics.BroadcasterPanics.Inc()
			b.closeAll("broadcaster failure")
		}
	}()

	depthTicker := b.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(b.cmdCh)
			b.metrics.CommandQueueDepth.Set(float64(depth))
			if depth > commandQueueWarnMark {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.removeSubscriber(c.eventID, c.sink, "")
			case publishCmd:
				b.handlePublish(c)
			case subscriberCountCmd:
				c.reply <- len(b.events[c.eventID])
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	subs, exists := b.events[c.eventID]
	if len(subs) >= b.maxPerEvent {
		slog.Warn("Rejecting subscriber: event at capacity",
			"event_id", c.eventID.String(),
			"max_subscribers", b.maxPerEvent,
		)
		b.metrics.SubscribersRejected.Inc()
		c.reply <- registerReply{err: fmt.Errorf("%w (max %d)", domain.ErrTooManySubscribers, b.maxPerEvent)}
		return
	}
	if _, dup := subs[c.sink]; dup {
		c.reply <- registerReply{err: errors.New("sink already registered")}
		return
	}

	if !exists {
		subs = make(eventSubscribers)
		b.events[c.eventID] = subs
	}

	sub := newSubscriber(c.eventID, c.sink, b.clock, b.metrics)
	sub.enqueue(c.ack)
	sub.start()
	subs[c.sink] = sub

	b.metrics.ActiveEvents.Set(float64(len(b.events)))
	b.metrics.Subscribers.WithLabelValues(c.sink.Transport()).Inc()

	if !exists && b.onFirstSubscriber != nil {
		b.onFirstSubscriber(c.eventID)
	}

	slog.Debug("Subscriber registered",
		"event_id", c.eventID.String(),
		"transport", c.sink.Transport(),
		"subscribers", len(subs),
	)
	c.reply <- registerReply{exited: sub.exited}
}

func (b *Broadcaster) handlePublish(c publishCmd) {
	subs := b.events[c.eventID]
	if len(subs) == 0 {
		return
	}
	b.metrics.MessagesPublished.Inc()

	type eviction struct {
		sink   Sink
		reason string
	}
	var evicted []eviction

	for sink, sub := range subs {
		switch {
		case sub.hasExited():
			evicted = append(evicted, eviction{sink, "write_failure"})
		case !sub.enqueue(c.data):
			evicted = append(evicted, eviction{sink, "slow"})
		}
	}

	for _, e := range evicted {
		slog.Warn("Dropping subscriber",
			"event_id", c.eventID.String(),
			"transport", e.sink.Transport(),
			"reason", e.reason,
			"error", domain.ErrSinkWriteFailure,
		)
		b.removeSubscriber(c.eventID, e.sink, e.reason)
	}
}

// removeSubscriber drops one subscriber. evictReason is empty for client-initiated removals.
func (b *Broadcaster) removeSubscriber(eventID uuid.UUID, sink Sink, evictReason string) {
	subs, exists := b.events[eventID]
	if !exists {
		return
	}
	sub, exists := subs[sink]
	if !exists {
		return
	}

	if evictReason != "" {
		sub.evict()
	} else {
		sub.stop()
	}
	delete(subs, sink)

	b.metrics.Subscribers.WithLabelValues(sink.Transport()).Dec()
	if evictReason != "" {
		b.metrics.SubscribersEvicted.WithLabelValues(evictReason).Inc()
	}

	if len(subs) > 0 {
		slog.Debug("Subscriber unregistered", "event_id", eventID.String(), "remaining", len(subs))
		return
	}

	delete(b.events, eventID)
	b.metrics.ActiveEvents.Set(float64(len(b.events)))
	if b.onEventEmpty != nil {
		b.onEventEmpty(eventID)
	}
	slog.Info("Last subscriber disconnected", "event_id", eventID.String())
}

func (b *Broadcaster) handleStop() {
	total := 0
	for _, subs := range b.events {
		total += len(subs)
	}
	slog.Info("Broadcaster shutting down", "events", len(b.events), "subscribers", total)

	b.closeAll(shutdownReason)

	slog.Info("Broadcaster shutdown complete", "disconnected_subscribers", total)
}

// closeAll stops every subscriber with reason and waits, bounded by stopTimeout, for the writers to exit.
func (b *Broadcaster) closeAll(reason string) {
	var writers []*subscriber
	for eventID, subs := range b.events {
		for _, sub := range subs {
			sub.stopGraceful(reason)
			b.metrics.Subscribers.WithLabelValues(sub.sink.Transport()).Dec()
			writers = append(writers, sub)
		}
		delete(b.events, eventID)
		if b.onEventEmpty != nil {
			b.onEventEmpty(eventID)
		}
	}
	b.metrics.ActiveEvents.Set(0)

	deadline := b.clock.NewTimer(b.stopTimeout)
	defer deadline.Stop()
	for _, sub := range writers {
		select {
		case <-sub.exited:
		case <-deadline.Chan():
			slog.Warn("Subscriber writers did not exit before the stop timeout")
			return
		}
	}
}
