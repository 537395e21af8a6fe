package recorder

import (
	"io"

	internalrecorder "github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/pkg/limiter"
)

// TrafficRecord represents a single captured request.
type TrafficRecord = internalrecorder.TrafficRecord

// DecisionEvent pairs a traffic record with the produced decision.
type DecisionEvent = internalrecorder.DecisionEvent

// Recorder captures traffic records for later replay. It is a
// limiter.Observer.
type Recorder = internalrecorder.Recorder

// New creates a new Recorder.
func New(w io.Writer) *Recorder {
	return internalrecorder.New(w)
}

// NewDecisionEvent derives a traffic record from d.
func NewDecisionEvent(d limiter.Decision, endpoint string) DecisionEvent {
	return internalrecorder.NewDecisionEvent(d, endpoint)
}

// LoadJSON reads traffic records from a JSON array.
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	return internalrecorder.LoadJSON(r)
}

// LoadFile reads traffic records from a JSON file.
func LoadFile(path string) ([]TrafficRecord, error) {
	return internalrecorder.LoadFile(path)
}
