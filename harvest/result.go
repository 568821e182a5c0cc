package harvest

// Rejection records a source left out of a lenient harvest.
type Rejection struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Result is the outcome of a completed harvest, stored as the job result.
type Result struct {
	NumTriples int             `json:"num_triples"`
	Sources    []SourceOutcome `json:"sources"`
	Rejected   []Rejection     `json:"rejected"`
}
