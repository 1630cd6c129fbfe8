package connection

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/skullzarmy/collekt-go/services/gallery/galleryevent"
)

// StatusNotification carries the connection state of every known
// provider, keyed by provider id. Subscribers always receive the full
// picture, not a delta.
type StatusNotification map[string]State

// StatusNotifier publishes one aggregate event whenever any registered
// provider's connection state changes.
type StatusNotifier struct {
	statuses  *sync.Map // provider id -> *Status
	eventType galleryevent.EventType
	feed      *event.Feed
}

func NewStatusNotifier(statuses *sync.Map, eventType galleryevent.EventType, feed *event.Feed) *StatusNotifier {
	n := &StatusNotifier{
		statuses:  statuses,
		eventType: eventType,
		feed:      feed,
	}

	statuses.Range(func(_, value interface{}) bool {
		value.(*Status).SetStateChangeCb(n.notify)
		return true
	})

	return n
}

// Watch registers an additional provider after construction.
func (n *StatusNotifier) Watch(providerID string, status *Status) {
	n.statuses.Store(providerID, status)
	status.SetStateChangeCb(n.notify)
}

func (n *StatusNotifier) notify(State) {
	if n.feed == nil {
		return
	}

	statusMap := make(StatusNotification)
	n.statuses.Range(func(id, value interface{}) bool {
		state := value.(*Status).GetState()
		if state.Value == StateValueUnknown {
			return true
		}
		statusMap[id.(string)] = state
		return true
	})

	encodedMessage, err := json.Marshal(statusMap)
	if err != nil {
		return
	}

	n.feed.Send(galleryevent.Event{
		Type:    n.eventType,
		Message: string(encodedMessage),
		At:      time.Now().Unix(),
	})
}
