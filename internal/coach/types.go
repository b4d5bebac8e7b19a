package coach

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnalysisRequest asks the service to analyse games played since Date.
type AnalysisRequest struct {
	Date string
}

// RunHandle identifies an analysis run on the service.
type RunHandle struct {
	RunID string `json:"run_id"`
}

// Frequency is how often a scheduled analysis recurs.
type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// ParseFrequency accepts "daily" or "weekly" in any case. An empty string
// is Daily.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case "", Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	}
	return "", fmt.Errorf("unknown frequency %q (want daily or weekly)", s)
}

func (f Frequency) String() string {
	if f == "" {
		return string(Daily)
	}
	return string(f)
}

// ScheduleDraft is a recurring analysis that has not been submitted yet.
type ScheduleDraft struct {
	Date      string    `json:"date"`
	Frequency Frequency `json:"frequency"`
}

// NewScheduleDraft returns an empty draft with the default frequency.
func NewScheduleDraft() ScheduleDraft {
	return ScheduleDraft{Frequency: Daily}
}

// Document is an analysis result exactly as the service returned it. The
// shape of Body is not interpreted.
type Document struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Pretty renders Body with two-space indentation.
func (d Document) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.Body, "", "  "); err != nil {
		return string(d.Body)
	}
	return buf.String()
}

// Empty reports whether Body carries no content: null, {} or [].
func (d Document) Empty() bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, d.Body); err != nil {
		return len(bytes.TrimSpace(d.Body)) == 0
	}
	switch buf.String() {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}

// Null reports whether Body is JSON null. The page shows nothing for a null
// analysis but still shows {} or [].
func (d Document) Null() bool {
	return string(bytes.TrimSpace(d.Body)) == "null"
}

// Sections decodes Body as a map of analysis file name to text, which is
// what the reference service returns. ok is false for any other shape.
func (d Document) Sections() (sections map[string]string, ok bool) {
	if err := json.Unmarshal(d.Body, &sections); err != nil || sections == nil {
		return nil, false
	}
	return sections, true
}

// ScheduledJob is one registered recurring analysis.
type ScheduledJob struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Frequency string `json:"frequency"`
}

// Dashboard summarises a user's scheduled analyses.
type Dashboard struct {
	Username      string         `json:"username"`
	ScheduledJobs []ScheduledJob `json:"scheduled_jobs"`
}
