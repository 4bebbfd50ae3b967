package domain

// OrderDescriptor is the immutable description of a print job handed to the
// dispatcher. The dispatcher never mutates it.
type OrderDescriptor struct {
	OrderID        string  `json:"order_id"`
	City           string  `json:"city"`
	MaterialType   string  `json:"material_type"`
	Cost           float64 `json:"cost"`
	EstimatedTime  string  `json:"estimated_time"`
	NumberOfPrints int     `json:"number_of_prints"`
	Description    string  `json:"description"`
	Instructions   string  `json:"instructions"`
	CreatorName    string  `json:"creator_name"`
}

// Candidate is one farmer in the pre-ranked list supplied by the matching
// service. Rank is the position in that list; MatchScore is carried through
// for display only and never drives dispatch decisions.
type Candidate struct {
	FarmerID   string  `json:"farmer_id"`
	Rank       int     `json:"rank"`
	MatchScore float64 `json:"match_score"`
}

// DispatchStatus is the terminal business outcome of one dispatch attempt.
type DispatchStatus string

const (
	DispatchAssigned     DispatchStatus = "assigned"
	DispatchNoFarmer     DispatchStatus = "no_farmer_accepted"
	DispatchNoCandidates DispatchStatus = "no_candidates"
	DispatchCancelled    DispatchStatus = "cancelled"
)

// DispatchResult is what the caller of Start gets back once the session
// reaches a terminal state.
type DispatchResult struct {
	Status   DispatchStatus `json:"status"`
	FarmerID string         `json:"farmer_id,omitempty"`
}
