package events

import (
	"github.com/redcell-dev/opswarm/bus"
	"github.com/redcell-dev/opswarm/logging"
)

// Broadcaster publishes events on an event bus. It is the single write path
// for the core's event stream; observers subscribe to `events.>` (or a
// narrower pattern) on the same bus.
type Broadcaster struct {
	bus    bus.EventBus
	logger *logging.Logger
}

// NewBroadcaster creates a broadcaster on the given bus.
func NewBroadcaster(b bus.EventBus, logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		bus:    b,
		logger: logger.WithComponent("events"),
	}
}

// Emit marshals the event and publishes it under events.<type>. Failures are
// logged and swallowed: event delivery is best-effort and must never stall
// or fail a queue operation.
func (br *Broadcaster) Emit(e *Event) {
	data, err := e.Marshal()
	if err != nil {
		br.logger.Error("event marshal failed", map[string]interface{}{
			"type":  e.Type,
			"error": err,
		})
		return
	}

	if err := br.bus.Publish(e.Subject(), data); err != nil {
		br.logger.Warn("event publish failed", map[string]interface{}{
			"type":  e.Type,
			"error": err,
		})
	}
}

// Ensure Broadcaster implements Sink.
var _ Sink = (*Broadcaster)(nil)
var _ Sink = NopSink{}
