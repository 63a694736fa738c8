package overlay

// State is a step of the overlay pipeline.
type State string

const (
	StateIdle              State = "idle"
	StateLookingUpBuilding State = "looking-up-building"
	StateFetchingRasters   State = "fetching-rasters"
	StateDecoding          State = "decoding"
	StateRasterizing       State = "rasterizing"
	StateReady             State = "ready"
	StateError             State = "error"

	// Monthly side-states. They never gate StateReady.
	StateMonthlyPending State = "monthly-pending"
	StateMonthlyReady   State = "monthly-ready"
	StateMonthlyFailed  State = "monthly-failed"
)

// StateObserver is notified of every transition. Monthly transitions arrive
// from a background goroutine, so observers must be safe for concurrent use.
type StateObserver func(selectionID string, s State)
