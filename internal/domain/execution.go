package domain

import "time"

// ExecOutcome is the terminal state of one two-leg execution attempt.
type ExecOutcome string

const (
	ExecPending      ExecOutcome = "pending"
	ExecBothFilled   ExecOutcome = "both_filled"
	ExecBothRejected ExecOutcome = "both_rejected"
	ExecAsymmetric   ExecOutcome = "asymmetric"
	ExecAborted      ExecOutcome = "aborted"
)

// ExecutionLeg is one side of a hedged execution.
type ExecutionLeg struct {
	Venue          Venue
	QuestionID     string
	Outcome        string
	Side           OrderSide
	RequestedPrice float64
	FilledPrice    float64
	Quantity       float64
	Filled         bool
	SlippageBps    float64
	OrderID        string
	Reason         string // venue-reported rejection reason, if any
}

// ExecutionRecord persists one execution attempt with both legs for PnL
// tracking and post-mortem analysis.
type ExecutionRecord struct {
	ID            string
	OpportunityID string
	MappingID     string
	Outcome       ExecOutcome
	BuyLeg        ExecutionLeg
	SellLeg       ExecutionLeg
	ExpectedEdge  float64 // net profit per contract at detection time
	RealizedPnL   float64 // actual, from fill prices; 0 unless both filled
	StartedAt     time.Time
	CompletedAt   *time.Time
}
