package core

import "time"

// Phase is the transport connection phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAdvertising
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAdvertising:
		return "advertising"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// PeerHandle identifies the connected peer. It is only meaningful while the
// phase is PhaseConnected.
type PeerHandle string

// ConnectionState is owned by the transport and published as an immutable
// snapshot.
type ConnectionState struct {
	Phase   Phase
	Peer    PeerHandle
	MTU     uint16
	Session string // per-connection id for log correlation
}

// Connected reports whether on-air writes are permitted.
func (s ConnectionState) Connected() bool {
	return s.Phase == PhaseConnected
}

// CaptureState is owned by the capture controller.
type CaptureState struct {
	ActiveChannel uint8
	Capturing     bool
	LastHop       time.Time
	Fault         error // last hop failure, cleared by a successful Begin
}

// Stats is an immutable copy of the aggregate capture counters.
type Stats struct {
	Total  uint64
	ByKind [NumKinds]uint64
	Bytes  uint64
}

// Mgmt returns the management frame count.
func (s Stats) Mgmt() uint64 { return s.ByKind[KindManagement] }

// Data returns the data frame count.
func (s Stats) Data() uint64 { return s.ByKind[KindData] }
