package webhook

/* ProcessingMode tells how an accepted event was handled
 * Queued is the normal asynchronous path, Inline is the fallback used
 * when the queue could not take the event
 */
type ProcessingMode int

const (
	Queued ProcessingMode = iota + 1
	Inline
)

// String returns the string representation of the processing mode
func (m ProcessingMode) String() string {
	switch m {
	case Queued:
		return "queued"
	case Inline:
		return "inline"
	default:
		return "unknown"
	}
}
