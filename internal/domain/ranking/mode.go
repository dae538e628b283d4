package ranking

// Mode is the requested result ordering.
type Mode string

// Sort mode constants.
const (
	// Best is the fused default: a convex combination of quality and
	// similarity scores.
	Best Mode = "best"
	// Stars orders by raw star count descending.
	Stars Mode = "stars"
	// Updated orders by last-update timestamp descending.
	Updated Mode = "updated"
	// Created orders by creation timestamp descending.
	Created Mode = "created"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Best || m == Stars || m == Updated || m == Created
}
