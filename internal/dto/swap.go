package dto

// SwapRequest identifies the two assignments whose subject and teacher
// should be exchanged. Each row keeps its own day and period.
type SwapRequest struct {
	AssignmentID1 string `json:"assignmentId1" validate:"required"`
	AssignmentID2 string `json:"assignmentId2" validate:"required"`
}

// SwapValidity is the outcome of a swap validity check.
type SwapValidity struct {
	CanSwap   bool     `json:"canSwap"`
	Reason    string   `json:"reason,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}
