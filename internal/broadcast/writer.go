package broadcast

import (
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
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	messageBufferSize = 16
)

// subscriber owns the writer goroutine of one sink. The goroutine is the only
// caller of Send and Ping; it closes the sink and the exited channel on its way out.
type subscriber struct {
	eventID     uuid.UUID
	sink        Sink
	clock       clockwork.Clock
	metrics     *metrics.StreamMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	exited      chan struct{}
	stopOnce    sync.Once
	closeReason string
	// flushOnStop delivers messages queued before the stop; evictions skip it.
	flushOnStop bool
}

func newSubscriber(eventID uuid.UUID, sink Sink, clock clockwork.Clock, m *metrics.StreamMetrics) *subscriber {
	return &subscriber{
		eventID:     eventID,
		sink:        sink,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

func (s *subscriber) start() {
	go s.run()
}

func (s *subscriber) run() {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(s.exited)

	for {
		select {
		case msg := <-s.sendChannel:
			start := s.clock.Now()
			if err := s.sink.Send(msg); err != nil {
				s.fail(err)
				return
			}
			s.metrics.SendDuration.Observe(s.clock.Since(start).Seconds())
			s.metrics.MessagesDelivered.Inc()
		case <-ticker.Chan():
			if err := s.sink.Ping(); err != nil {
				s.metrics.PingFailures.Inc()
				s.fail(err)
				return
			}
		case <-s.doneChannel:
			if s.flushOnStop {
				s.flush()
			}
			_ = s.sink.Close(s.closeReason)
			return
		}
	}
}

// flush sends whatever is still buffered without waiting for more. The first failed send ends it.
func (s *subscriber) flush() {
	for {
		select {
		case msg := <-s.sendChannel:
			if err := s.sink.Send(msg); err != nil {
				return
			}
			s.metrics.MessagesDelivered.Inc()
		default:
			return
		}
	}
}

func (s *subscriber) fail(err error) {
	slog.Debug("Subscriber write failed",
		"event_id", s.eventID.String(),
		"transport", s.sink.Transport(),
		"error", fmt.Errorf("%w: %w", domain.ErrSinkWriteFailure, err),
	)
	_ = s.sink.Close("")
}

// stop signals the writer to deliver what is already queued, close the sink and exit. It does not wait.
func (s *subscriber) stop() {
	s.stopGraceful("")
}

// stopGraceful is stop with a reason the client gets to see before the connection ends.
func (s *subscriber) stopGraceful(reason string) {
	s.halt(reason, true)
}

// evict closes the sink without flushing; the sink already failed to keep up.
func (s *subscriber) evict() {
	s.halt("", false)
}

func (s *subscriber) halt(reason string, flush bool) {
	s.stopOnce.Do(func() {
		s.closeReason = reason
		s.flushOnStop = flush
		close(s.doneChannel)
	})
}

func (s *subscriber) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// enqueue hands data to the writer without blocking. It reports false when the buffer is full.
func (s *subscriber) enqueue(data []byte) bool {
	select {
	case s.sendChannel <- data:
		return true
	default:
		return false
	}
}
