package models

import "time"

// EventType identifies a device event published on the event bus.
type EventType int

const (
	EventPlaybackStarted  EventType = iota // a file began playing
	EventPlaybackFinished                  // the decoder ran out of data
	EventPlaybackStopped                   // playback was cut short
	EventOpenFailed                        // the requested file could not be opened
	EventBankChanged                       // the mode button switched banks
	EventSleep                             // the idle timer expired
	EventWake                              // the device re-initialized after sleep
)

// String returns the snake_case name of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlaybackStarted:
		return "playback_started"
	case EventPlaybackFinished:
		return "playback_finished"
	case EventPlaybackStopped:
		return "playback_stopped"
	case EventOpenFailed:
		return "open_failed"
	case EventBankChanged:
		return "bank_changed"
	case EventSleep:
		return "sleep"
	case EventWake:
		return "wake"
	default:
		return "unknown"
	}
}

// Event is a single device event.
type Event struct {
	Type   EventType
	Player string // playback controller name, empty for non-playback events
	Bank   Bank
	Path   string // file involved, empty for bank/sleep events
	Time   time.Time
}
