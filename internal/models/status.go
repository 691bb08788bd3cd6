package models

const (
	StatusWaiting   = "Waiting"
	StatusCalled    = "Called"
	StatusServed    = "Served"
	StatusCancelled = "Cancelled"
)

// StatusCategory is the type of every vocabulary row that names a reservation status.
const StatusCategory = "Status"

type StatusEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
	Type  string `json:"type" yaml:"type"`
}
