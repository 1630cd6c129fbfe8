package galleryevent

// EventType type for event types.
type EventType string

// Event is emitted on the event feed when an asynchronous gallery
// operation finishes or a provider connection status changes.
type Event struct {
	Type     EventType `json:"type"`
	Subjects []string  `json:"subjects"`
	Message  string    `json:"message"`
	At       int64     `json:"at"`
}
