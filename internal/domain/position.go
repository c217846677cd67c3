package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is open exposure on one venue/question/outcome. Because all orders
// are fill-or-kill, positions are created fully filled or not at all; there
// are no partial-fill updates.
type Position struct {
	ID            string
	Venue         Venue
	QuestionID    string
	Outcome       string
	Side          OrderSide // direction of the entry order
	Quantity      float64
	AvgEntryPrice float64
	Status        PositionStatus
	RealizedPnL   float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
	ExitPrice     *float64
}

// Notional is the entry value of the position.
func (p Position) Notional() float64 {
	return p.AvgEntryPrice * p.Quantity
}
