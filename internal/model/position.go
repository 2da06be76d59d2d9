package model

import "time"

type PositionStatus string

const (
	StatusOpen            PositionStatus = "open"
	StatusPartiallyClosed PositionStatus = "partially_closed"
	StatusClosed          PositionStatus = "closed"
)

type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitPartialProfit ExitReason = "partial_profit"
	ExitTrailingStop  ExitReason = "trailing_stop"
	ExitMaxHolding    ExitReason = "max_holding"
	ExitEndOfBacktest ExitReason = "end_of_backtest"
)

// Position is a single simulated holding. Created on admission, mutated only
// by the executor's daily step, and moved to the closed-trade ledger once the
// status reaches closed.
type Position struct {
	Symbol     string
	Sector     string
	EntryDate  time.Time
	EntryPrice float64

	SharesOpened    int
	SharesRemaining int

	PartialProfitTaken bool
	Status             PositionStatus

	ExitDate   time.Time
	ExitPrice  float64
	ExitReason ExitReason

	// TrailingExitPending marks a trailing-stop trigger whose fill happens at
	// the next trading day's open.
	TrailingExitPending bool

	// SurprisePct and GapPct are carried for the ledger.
	SurprisePct float64
	GapPct      float64
}

// Key identifies a position within the portfolio.
func (p *Position) Key() string {
	return p.Symbol + "@" + p.EntryDate.Format("2006-01-02")
}

// EquityPoint is one mark-to-market observation of the portfolio.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Portfolio tracks account capital and the set of open positions for one run.
// Capital is starting capital plus realized pnl; purchases never reduce it.
// Position sizing and the margin check both read it directly. Each run owns
// its own instance; nothing here is shared between runs.
type Portfolio struct {
	InitialCapital float64
	Capital        float64

	// Open positions in admission order, keyed by symbol+entry_date.
	Open map[string]*Position
	// openOrder preserves deterministic iteration over Open.
	openOrder []string

	EquityCurve []EquityPoint
}

func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		InitialCapital: initialCapital,
		Capital:        initialCapital,
		Open:           make(map[string]*Position),
	}
}

// Add registers a newly admitted position.
func (pf *Portfolio) Add(pos *Position) {
	key := pos.Key()
	pf.Open[key] = pos
	pf.openOrder = append(pf.openOrder, key)
}

// Remove drops a closed position from the open set.
func (pf *Portfolio) Remove(pos *Position) {
	key := pos.Key()
	delete(pf.Open, key)
	for i, k := range pf.openOrder {
		if k == key {
			pf.openOrder = append(pf.openOrder[:i], pf.openOrder[i+1:]...)
			break
		}
	}
}

// OpenPositions returns the open positions in admission order.
func (pf *Portfolio) OpenPositions() []*Position {
	out := make([]*Position, 0, len(pf.openOrder))
	for _, key := range pf.openOrder {
		if pos, ok := pf.Open[key]; ok {
			out = append(out, pos)
		}
	}
	return out
}

// RiskState carries the circuit-breaker state for one run. The halt is
// permanent for the remainder of the run; a new run starts with a fresh
// RiskState.
type RiskState struct {
	TradingHalted     bool
	HaltTriggeredDate time.Time

	// CumulativeRealizedLoss is the sum of realized losing pnl magnitudes.
	CumulativeRealizedLoss float64
}

// CumulativeRealizedLossPct expresses realized losses against starting capital.
func (rs *RiskState) CumulativeRealizedLossPct(initialCapital float64) float64 {
	if initialCapital <= 0 {
		return 0
	}
	return rs.CumulativeRealizedLoss / initialCapital * 100
}
