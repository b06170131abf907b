package constants

// ActivityEvent is a user interaction type that keeps a count session alive.
type ActivityEvent string

const (
	ActivityPointerDown ActivityEvent = "pointerdown"
	ActivityKeyDown     ActivityEvent = "keydown"
	ActivityTouchStart  ActivityEvent = "touchstart"
	ActivityClick       ActivityEvent = "click"
)

var activityEvents = map[ActivityEvent]struct{}{
	ActivityPointerDown: {},
	ActivityKeyDown:     {},
	ActivityTouchStart:  {},
	ActivityClick:       {},
}

// Qualifies reports whether the event resets the inactivity timers.
func (e ActivityEvent) Qualifies() bool {
	_, ok := activityEvents[e]
	return ok
}
