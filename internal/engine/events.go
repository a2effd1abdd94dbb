package engine

import "time"

// EventKind names an emitted engine event.
type EventKind string

const (
	EventSessionProcessed    EventKind = "session_processed"
	EventAdaptationTriggered EventKind = "adaptation_triggered"
	EventAdaptationError     EventKind = "adaptation_error"
	EventAlert               EventKind = "alert"
	EventHighFailureRate     EventKind = "high_failure_rate"
	EventNewDetectionMethods EventKind = "new_detection_methods"
	EventHighRiskPredicted   EventKind = "high_risk_predicted"
)

// Event is the tagged union delivered on the engine's event channel. Only the
// fields relevant to Kind are set. Delivery never blocks ingestion: when the
// channel is full the event is dropped, counted, and still written to the
// category logs.
type Event struct {
	Kind     EventKind `json:"kind"`
	SiteType string    `json:"site_type,omitempty"`
	Time     time.Time `json:"time"`

	Alert      *Alert            `json:"alert,omitempty"`
	Record     *AdaptationRecord `json:"record,omitempty"`
	Prediction *Prediction       `json:"prediction,omitempty"`
	Err        string            `json:"error,omitempty"`

	FailureRate  float64  `json:"failure_rate,omitempty"`
	SessionCount int      `json:"session_count,omitempty"`
	Methods      []string `json:"methods,omitempty"`
}
