// Package dispatch delivers realtime events to online users through the
// presence registry. Delivery is strictly best-effort: an offline recipient
// is a silent no-op, and a failed send evicts the recipient's presence entry
// instead of surfacing the error to the caller.
package dispatch

import (
	"log"
	"sync"
	"time"

	"github.com/meixup/realtime/internal/event"
	"github.com/meixup/realtime/internal/metrics"
	"github.com/meixup/realtime/internal/presence"
)

// Dispatcher fans events out to connections held by a presence registry.
type Dispatcher struct {
	registry *presence.Registry
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *presence.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// SendTo delivers ev to userID's connection if one is registered. Offline
// recipients are skipped silently. A failed write is treated as "user went
// offline": the entry is removed from the registry and the dead connection
// is closed before SendTo returns. The caller never sees a delivery error;
// the underlying domain fact has been persisted separately and realtime
// delivery is unobservable by design.
func (d *Dispatcher) SendTo(userID int64, ev event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		log.Printf("dispatch: dropping unmarshalable %s event for user=%d: %v", ev.Type, userID, err)
		return
	}
	d.sendRaw(userID, ev.Type, data)
}

// BroadcastAll delivers ev to every user registered at call time. The
// recipient set is a snapshot: users who register mid-broadcast are not
// included. Sends run concurrently and each failed send evicts only its own
// recipient. BroadcastAll returns once every send attempt has finished.
func (d *Dispatcher) BroadcastAll(ev event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		log.Printf("dispatch: dropping unmarshalable %s broadcast: %v", ev.Type, err)
		return
	}

	ids := d.registry.Online()
	metrics.BroadcastRecipients.Observe(float64(len(ids)))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			d.sendRaw(userID, ev.Type, data)
		}(id)
	}
	wg.Wait()
}

// sendRaw performs one delivery attempt against a connection obtained from a
// lock-guarded lookup. The write itself happens outside the registry lock; a
// slow transport stalls only this attempt, bounded by the connection's write
// deadline.
func (d *Dispatcher) sendRaw(userID int64, eventType string, data []byte) {
	conn, ok := d.registry.Lookup(userID)
	if !ok {
		metrics.DeliveriesTotal.WithLabelValues("offline").Inc()
		return
	}

	start := time.Now()
	err := conn.WriteMessage(data)
	metrics.DeliveryLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		// Broken pipe or write timeout: the recipient is gone. Heal the
		// registry so later sends stop as offline no-ops. Release instead of
		// Deregister so a newer connection the user raced in is untouched.
		if d.registry.Release(userID, conn) {
			_ = conn.Close()
		}
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		log.Printf("dispatch: send %s to user=%d failed, marked offline: %v", eventType, userID, err)
		return
	}

	metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
}
