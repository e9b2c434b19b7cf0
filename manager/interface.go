package manager

import (
	"context"
	"time"
)

// Weather is a provider of current conditions for a city.
//
// Implementations return a *Failure for every error so the service can
// categorize it without inspecting transport details.
type Weather interface {
	Get(ctx context.Context, query Query) (Report, error)
}

// Query is the raw city text typed by the user. It is forwarded as-is.
type Query struct {
	City string
}

// Report is the decoded current conditions.
type Report struct {
	Description        string
	TemperatureCelsius int
}

// Outcome is the terminal result of one query. Exactly one of Report and
// Failure is set.
type Outcome struct {
	ID      string
	City    string
	Report  *Report
	Failure *Failure
	At      time.Time
}

func (o Outcome) OK() bool {
	return o.Failure == nil && o.Report != nil
}

// Message is the line shown to the user when the query failed.
func (o Outcome) Message() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Message()
}
