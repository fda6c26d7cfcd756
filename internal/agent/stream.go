package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/reun10n/kuro/internal/observability"
)

const (
	// DefaultHeartbeatInterval is how often a silent turn emits a
	// "thinking..." status.
	DefaultHeartbeatInterval = 15 * time.Second

	// DefaultInactivityTimeout is the rolling deadline since the last
	// producer-originated event. Heartbeat statuses do not extend it, so
	// a wedged producer still gets cut off. When it fires the turn is
	// over, whatever the producer is still doing.
	DefaultInactivityTimeout = 120 * time.Second

	// streamQueueSize bounds the internal event queue. A full queue slows
	// the producer (text deltas block) and drops status notes.
	streamQueueSize = 64
)

// timedOutReply is the synthesized final text when the inactivity watchdog
// fires mid-turn.
const timedOutReply = "sorry, i got stuck on that one. try again?"

type streamItem struct {
	event Event
	err   error
	done  bool

	// heartbeat marks ticker-originated status notes. They keep the
	// consumer informed but must not feed the inactivity watchdog: the
	// watchdog measures producer silence, and a wedged producer still
	// has a live heartbeat.
	heartbeat bool
}

// Stream executes one streaming turn and returns its event channel.
//
// Three goroutines cooperate: a producer running the turn, a heartbeat
// ticker, and a forwarder that owns the output channel. Everything the
// caller sees funnels through one internal FIFO queue, so relative order of
// text deltas and status notes is exactly arrival order.
//
// The channel is closed when the turn completes, fails (last event carries
// Err), times out (last event is synthesized text), or ctx is cancelled.
// On success the turn is committed to history by the producer before the
// terminal marker is queued, so a consumer that sees the channel close can
// rely on history being up to date.
func (r *Runner) Stream(ctx context.Context, conversationID, userText string) <-chan Event {
	out := make(chan Event)
	queue := make(chan streamItem, streamQueueSize)
	start := time.Now()
	heartbeatInterval := r.cfg.HeartbeatInterval
	inactivityTimeout := r.cfg.InactivityTimeout

	prodCtx, cancel := context.WithCancel(ctx)

	// enqueue blocks when the queue is full: backpressure for text deltas.
	// Gives up if the turn is being torn down.
	enqueue := func(item streamItem) {
		select {
		case queue <- item:
		case <-prodCtx.Done():
		}
	}

	// Status notes are fire-and-forget: dropped, not queued, when full.
	sink := newStatusSink(func(msg string) {
		select {
		case queue <- streamItem{event: Event{Kind: EventStatus, Status: msg}}:
		default:
		}
	})
	prodCtx = WithStatusSink(prodCtx, sink)

	producerDone := make(chan struct{})
	heartbeatDone := make(chan struct{})

	go func() {
		defer close(producerDone)
		turns, _, err := r.runWithRecovery(prodCtx, conversationID, userText, func(ev Event) {
			enqueue(streamItem{event: ev})
		})
		if err != nil {
			enqueue(streamItem{err: err})
			return
		}
		r.history.Append(conversationID, turns...)
		enqueue(streamItem{done: true})
	}()

	go func() {
		defer close(heartbeatDone)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case <-prodCtx.Done():
				return
			case <-ticker.C:
				// Enqueued directly, not through the sink, so the
				// forwarder can tell heartbeats from producer activity.
				select {
				case queue <- streamItem{
					event:     Event{Kind: EventStatus, Status: fmt.Sprintf("thinking... (%d)", n)},
					heartbeat: true,
				}:
				default:
				}
			}
		}
	}()

	go func() {
		defer close(out)

		// teardown stops the producer and heartbeat, waits for both, and
		// only then closes the sink. After teardown nothing can publish.
		teardown := func(outcome string) {
			cancel()
			<-producerDone
			<-heartbeatDone
			sink.Close()
			observability.TurnsTotal.WithLabelValues("streaming", outcome).Inc()
			observability.TurnDuration.Observe(time.Since(start).Seconds())
		}

		deliver := func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		watchdog := time.NewTimer(inactivityTimeout)
		defer watchdog.Stop()

		for {
			select {
			case item := <-queue:
				// Only producer-originated items reset the watchdog.
				if !item.heartbeat {
					if !watchdog.Stop() {
						select {
						case <-watchdog.C:
						default:
						}
					}
					watchdog.Reset(inactivityTimeout)
				}

				switch {
				case item.done:
					teardown("ok")
					return
				case item.err != nil:
					r.logger.Error("streaming turn failed",
						"conversation_id", conversationID, "error", item.err)
					deliver(Event{Err: item.err})
					teardown("error")
					return
				default:
					deliver(item.event)
				}

			case <-watchdog.C:
				r.logger.Warn("streaming turn timed out",
					"conversation_id", conversationID,
					"idle", inactivityTimeout,
					"elapsed", time.Since(start))
				observability.StreamTimeoutsTotal.Inc()
				deliver(Event{Kind: EventText, Text: timedOutReply})
				teardown("timeout")
				return

			case <-ctx.Done():
				teardown("cancelled")
				return
			}
		}
	}()

	return out
}
