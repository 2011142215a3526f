package models

import "time"

// RunStatus represents the status of an allocation run.
type RunStatus string

// RunStatusComplete marks a run whose layout was stored. Rejected requests
// are not stored.
const RunStatusComplete RunStatus = "complete"

// CandidateScore records the penalty of one candidate layout.
type CandidateScore struct {
	Strategy Strategy `json:"strategy" msgpack:"strategy"`
	Penalty  float64  `json:"penalty" msgpack:"penalty"`
	Plates   int      `json:"plates" msgpack:"plates"`
}

// AllocationRun is the stored record of one allocation request.
type AllocationRun struct {
	ID               string           `json:"id"`
	FileID           string           `json:"fileId,omitempty"` // Source experiment file, if any
	Status           RunStatus        `json:"status"`
	PlateSize        int              `json:"plateSize"`
	PlateCount       int              `json:"plateCount"`
	Experiments      ExperimentSet    `json:"experiments"`
	WellsNeeded      int              `json:"wellsNeeded"`
	WellsAvailable   int              `json:"wellsAvailable"`
	Strategy         Strategy         `json:"strategy"`
	Penalty          float64          `json:"penalty"`
	Candidates       []CandidateScore `json:"candidates,omitempty"`
	PlatesUsed       int              `json:"platesUsed"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ArchivedWell is one filled well of a stored layout.
type ArchivedWell struct {
	RunID   string `json:"runId"`
	Plate   int    `json:"plate"`
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Well    string `json:"well"`
	Sample  string `json:"sample"`
	Reagent string `json:"reagent"`
}

// WellFilter narrows archived well queries. Empty fields match everything.
type WellFilter struct {
	Sample  string
	Reagent string
	Plate   *int
}
