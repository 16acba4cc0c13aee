package models

// EndpointStatus represents the processing status of a profile endpoint in the state store
type EndpointStatus string

const (
	EndpointStatusUnset    EndpointStatus = ""          // Zero value = unset/unknown
	EndpointStatusPending  EndpointStatus = "pending"   // Endpoint claimed but not finished
	EndpointStatusSuccess  EndpointStatus = "success"   // Record extracted and persisted (or deduplicated)
	EndpointStatusFailure  EndpointStatus = "failure"   // Fetch or extraction failed
	EndpointStatusNotFound EndpointStatus = "not_found" // Endpoint not in database
	EndpointStatusDBError  EndpointStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s EndpointStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s EndpointStatus) IsValid() bool {
	switch s {
	case EndpointStatusPending, EndpointStatusSuccess, EndpointStatusFailure:
		return true
	}
	return false
}

// ProcessorState is the lifecycle phase of a profile processor run
type ProcessorState int

const (
	StateLoaded   ProcessorState = iota // Endpoint list read
	StateBatching                       // Endpoints sliced into concurrency windows
	StateFetching                       // A window is in flight
	StateRetrying                       // Teardown casualties replayed once, serially
	StateDone
)

func (s ProcessorState) String() string {
	switch s {
	case StateLoaded:
		return "LOADED"
	case StateBatching:
		return "BATCHING"
	case StateFetching:
		return "FETCHING"
	case StateRetrying:
		return "RETRYING"
	case StateDone:
		return "DONE"
	}
	return "UNKNOWN"
}
