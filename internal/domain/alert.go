package domain

import "time"

// AlertReason explains why an alert fired.
type AlertReason string

const (
	ReasonHighImpactPositive AlertReason = "HighImpactPositive"
	ReasonHighImpactNegative AlertReason = "HighImpactNegative"
	ReasonSentimentShift     AlertReason = "SentimentShift"
)

// AlertEvent is handed to notifiers; it is never persisted with the news stream.
type AlertEvent struct {
	Record      EnrichedRecord
	Reason      AlertReason
	TriggeredAt time.Time
	// Baseline is the rolling mean sentiment score the record was compared to.
	Baseline float64
}
