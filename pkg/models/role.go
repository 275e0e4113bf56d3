package models

// Role identifies what a process does in the dashboard.
type Role string

const (
	// RoleWorker produces status reports and sends them to the coordinator.
	RoleWorker Role = "worker"
	// RoleCoordinator aggregates reports and renders the dashboard.
	RoleCoordinator Role = "coordinator"
)

// CoordinatorRank is the rank of the process that renders the dashboard.
const CoordinatorRank = 0

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleWorker, RoleCoordinator:
		return true
	default:
		return false
	}
}

// RoleFor returns the role a process with the given rank plays.
func RoleFor(rank int) Role {
	if rank == CoordinatorRank {
		return RoleCoordinator
	}
	return RoleWorker
}

// Channel routes a report to the message or progress stream.
// The numeric values double as transport tags.
type Channel int

const (
	// ChannelMessage carries the short status text.
	ChannelMessage Channel = 98
	// ChannelProgress carries the (completed, total) pair.
	ChannelProgress Channel = 99
)

// Channels lists every channel in the order they are serviced.
var Channels = []Channel{ChannelMessage, ChannelProgress}

// Valid returns true if the channel is a known value.
func (c Channel) Valid() bool {
	return c == ChannelMessage || c == ChannelProgress
}

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelMessage:
		return "message"
	case ChannelProgress:
		return "progress"
	default:
		return "unknown"
	}
}
