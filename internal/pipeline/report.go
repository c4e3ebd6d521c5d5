package pipeline

// Outcome of importing a single record.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeInvalid  Outcome = "invalid"
)

// RecordResult is the per-record line of a Report.
type RecordResult struct {
	ExternalID    string  `json:"external_id"`
	Outcome       Outcome `json:"outcome"`
	TransactionID int64   `json:"transaction_id,omitempty"`
	SeriesID      int64   `json:"series_id,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Report summarizes one import.
type Report struct {
	UserID    int64          `json:"user_id"`
	SourceURI string         `json:"source_uri,omitempty"`
	Total     int            `json:"total"`
	Created   int            `json:"created"`
	Existing  int            `json:"existing"`
	Invalid   int            `json:"invalid"`
	Attached  int            `json:"attached"`
	Results   []RecordResult `json:"results"`
}

func (r *Report) add(res RecordResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeExisting:
		r.Existing++
	case OutcomeInvalid:
		r.Invalid++
	}
}
