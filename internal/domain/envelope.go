package domain

import (
	"encoding/json"
	"time"
)

// envelopeTimeLayout renders millisecond-precision UTC timestamps, e.g.
// "2024-01-01T00:00:00.000Z". The string is part of the signed payload,
// so it is fixed at envelope construction and never reformatted.
const envelopeTimeLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the message delivered to a subscriber for one event
// occurrence. It is ephemeral — built at dispatch time, carried through
// the retry queue, never stored as its own entity.
type Envelope struct {
	EventType   string          `json:"eventType"`
	Timestamp   string          `json:"timestamp"`
	TriggeredBy string          `json:"triggeredBy"`
	Data        json.RawMessage `json:"data"`
}

// NewEnvelope stamps the envelope with the given time. The timestamp is
// assigned exactly once here so the signature covers it verbatim.
func NewEnvelope(eventType, triggeredBy string, data json.RawMessage, now time.Time) Envelope {
	return Envelope{
		EventType:   eventType,
		Timestamp:   now.UTC().Format(envelopeTimeLayout),
		TriggeredBy: triggeredBy,
		Data:        data,
	}
}
