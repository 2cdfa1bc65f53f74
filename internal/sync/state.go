package sync

// State is the stage a run is in.
type State int

const (
	Idle State = iota
	MigratingAnonymous
	Fetching
	Computing
	Applying
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MigratingAnonymous:
		return "migrating-anonymous"
	case Fetching:
		return "fetching"
	case Computing:
		return "computing"
	case Applying:
		return "applying"
	case Persisting:
		return "persisting"
	default:
		return "unknown"
	}
}
