package binding

// State is the lifecycle position of a registered binding.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StatePropertiesLoaded
	StateActive
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StatePropertiesLoaded:
		return "properties_loaded"
	case StateActive:
		return "active"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON diagnostics.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
