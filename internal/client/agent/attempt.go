package agent

// Attempt says whether a request is being sent for the first time or replayed
// after a refresh. A Retry never triggers another refresh.
type Attempt int

const (
	FirstAttempt Attempt = iota
	Retry
)

func (a Attempt) String() string {
	switch a {
	case FirstAttempt:
		return "first_attempt"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}
