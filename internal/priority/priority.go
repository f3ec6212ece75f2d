// Package priority defines the task-priority lanes shared by the
// worker task runner and the Job state machine, so neither needs to
// import the other's package.
package priority

// TaskPriority is one of the priority lanes a worker task or Job can
// be posted at.
type TaskPriority int

const (
	BestEffort TaskPriority = iota
	UserVisible
	UserBlocking
	// Max is an array-bound sentinel, never a valid posting priority.
	Max
)

// String renders the priority for logging.
func (p TaskPriority) String() string {
	switch p {
	case BestEffort:
		return "best-effort"
	case UserVisible:
		return "user-visible"
	case UserBlocking:
		return "user-blocking"
	default:
		return "invalid"
	}
}
