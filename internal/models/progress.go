package models

// ProgressSample is one snapshot of an encoder's progress telemetry for a
// single output group. Frame and ElapsedSeconds are monotone non-decreasing
// within one encoder session.
type ProgressSample struct {
	GroupID        string  `json:"groupId"`
	Frame          uint64  `json:"frame"`
	FPS            float64 `json:"fps"`
	BitrateKbps    float64 `json:"bitrateKbps"`
	Speed          float64 `json:"speed"`
	BytesOut       uint64  `json:"bytesOut"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Dropped        uint64  `json:"dropped"`
	Duplicate      uint64  `json:"duplicate"`
}

// GroupState is the lifecycle state of one output group's supervisor.
type GroupState string

const (
	GroupIdle          GroupState = "idle"
	GroupStarting      GroupState = "starting"
	GroupRunning       GroupState = "running"
	GroupDraining      GroupState = "draining"
	GroupStoppedNormal GroupState = "stopped-normal"
	GroupStoppedError  GroupState = "stopped-error"
)
