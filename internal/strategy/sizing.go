package strategy

import (
	"fmt"
	"time"

	"earnings-backtest/config"
)

// SizingPattern names a position-sizing strategy variant.
type SizingPattern string

const (
	PatternFixed         SizingPattern = "fixed"
	PatternBreadth8MA    SizingPattern = "breadth_8ma"
	PatternBreadth5Stage SizingPattern = "breadth_5stage"
	PatternBearishSignal SizingPattern = "bearish_signal"
	PatternBottom3Stage  SizingPattern = "bottom_3stage"
)

// BreadthSnapshot is one day's market breadth observation.
type BreadthSnapshot struct {
	Date               time.Time
	Breadth8MA         float64
	BearishSignal      bool
	IsTrough           bool
	IsTrough8MABelow04 bool
}

// BreadthSource supplies market breadth data to the sizing strategies. The
// second return value is false when no observation exists near the date.
type BreadthSource interface {
	Snapshot(date time.Time) (BreadthSnapshot, bool)
}

// SizingState carries sequential sizing state across days for a single run.
// It is owned by the caller and passed by pointer into every sizing call, so
// two concurrent runs never share it.
type SizingState struct {
	BottomDetected bool
	BottomDate     time.Time
}

// bottomMemoryDays is how long an 8MA-bottom detection keeps influencing the
// bottom_3stage pattern.
const bottomMemoryDays = 30

func (s *SizingState) bottomActive(date time.Time) bool {
	if !s.BottomDetected {
		return false
	}
	diff := date.Sub(s.BottomDate).Hours() / 24
	return diff >= 0 && diff <= bottomMemoryDays
}

// SizingDecision is the outcome of one sizing call.
type SizingDecision struct {
	SizePct float64
	Reason  string
}

// SizingStrategy computes the capital fraction for a new entry on a given day.
type SizingStrategy interface {
	Pattern() SizingPattern
	Size(snap *BreadthSnapshot, state *SizingState, date time.Time) SizingDecision
}

// NewSizingStrategy returns the strategy variant selected by configuration.
func NewSizingStrategy(cfg config.Backtest) (SizingStrategy, error) {
	base := baseSizing{cfg: cfg}
	switch SizingPattern(cfg.SizingPattern) {
	case PatternFixed:
		return &fixedSizing{base}, nil
	case PatternBreadth8MA:
		return &breadth8MASizing{base}, nil
	case PatternBreadth5Stage:
		return &breadth5StageSizing{base}, nil
	case PatternBearishSignal:
		return &bearishSignalSizing{base}, nil
	case PatternBottom3Stage:
		return &bottom3StageSizing{base}, nil
	default:
		return nil, fmt.Errorf("unknown sizing pattern %q", cfg.SizingPattern)
	}
}

// Size thresholds mirror the observed production tuning of the breadth-driven
// patterns.
const (
	stressSize         = 8.0
	normalSize         = 15.0
	bullishSize        = 20.0
	extremeStressSize  = 6.0
	stressStageSize    = 10.0
	extremeBullishSize = 25.0

	bearishReductionMult = 0.6
	bearishStageMult     = 0.7
	bottom8MAMult        = 1.3
	bottom200MAMult      = 1.6
	bottomContinueMult   = 1.2
)

type baseSizing struct {
	cfg config.Backtest
}

func (b baseSizing) clamp(size float64) float64 {
	if size < b.cfg.MinPositionSizePct {
		return b.cfg.MinPositionSizePct
	}
	if size > b.cfg.MaxPositionSizePct {
		return b.cfg.MaxPositionSizePct
	}
	return size
}

func (b baseSizing) fallback() SizingDecision {
	return SizingDecision{SizePct: b.cfg.PositionSizePct, Reason: "no_market_data"}
}

type fixedSizing struct{ baseSizing }

func (s *fixedSizing) Pattern() SizingPattern { return PatternFixed }

func (s *fixedSizing) Size(_ *BreadthSnapshot, _ *SizingState, _ time.Time) SizingDecision {
	return SizingDecision{SizePct: s.cfg.PositionSizePct, Reason: "fixed"}
}

// breadth8MASizing is the basic three-stage adjustment on the breadth 8MA.
type breadth8MASizing struct{ baseSizing }

func (s *breadth8MASizing) Pattern() SizingPattern { return PatternBreadth8MA }

func (s *breadth8MASizing) Size(snap *BreadthSnapshot, _ *SizingState, _ time.Time) SizingDecision {
	if snap == nil {
		return s.fallback()
	}
	var size float64
	var stage string
	switch {
	case snap.Breadth8MA < 0.4:
		size, stage = stressSize, "stress"
	case snap.Breadth8MA >= 0.7:
		size, stage = bullishSize, "bullish"
	default:
		size, stage = normalSize, "normal"
	}
	return SizingDecision{
		SizePct: s.clamp(size),
		Reason:  fmt.Sprintf("%s_8ma_%.3f", stage, snap.Breadth8MA),
	}
}

// breadth5StageSizing refines the 8MA bands into five stages.
type breadth5StageSizing struct{ baseSizing }

func (s *breadth5StageSizing) Pattern() SizingPattern { return PatternBreadth5Stage }

func (s *breadth5StageSizing) Size(snap *BreadthSnapshot, _ *SizingState, _ time.Time) SizingDecision {
	if snap == nil {
		return s.fallback()
	}
	var size float64
	var stage string
	switch {
	case snap.Breadth8MA < 0.3:
		size, stage = extremeStressSize, "extreme_stress"
	case snap.Breadth8MA < 0.4:
		size, stage = stressStageSize, "stress"
	case snap.Breadth8MA < 0.7:
		size, stage = normalSize, "normal"
	case snap.Breadth8MA < 0.8:
		size, stage = bullishSize, "bullish"
	default:
		size, stage = extremeBullishSize, "extreme_bullish"
	}
	return SizingDecision{
		SizePct: s.clamp(size),
		Reason:  fmt.Sprintf("%s_%.3f", stage, snap.Breadth8MA),
	}
}

// bearishSignalSizing shrinks the base size while a bearish signal is active.
type bearishSignalSizing struct{ baseSizing }

func (s *bearishSignalSizing) Pattern() SizingPattern { return PatternBearishSignal }

func (s *bearishSignalSizing) Size(snap *BreadthSnapshot, _ *SizingState, _ time.Time) SizingDecision {
	if snap == nil {
		return s.fallback()
	}
	size := normalSize
	stage := "normal"
	if snap.BearishSignal {
		size = normalSize * bearishReductionMult
		stage = "bearish_reduction"
	}
	return SizingDecision{
		SizePct: s.clamp(size),
		Reason:  fmt.Sprintf("%s_%.3f", stage, snap.Breadth8MA),
	}
}

// bottom3StageSizing grows size through detected market bottoms: shrink on a
// bearish signal, expand on an 8MA bottom, expand further on a 200MA trough
// that follows one. The detection memory lives in the caller-owned SizingState.
type bottom3StageSizing struct{ baseSizing }

func (s *bottom3StageSizing) Pattern() SizingPattern { return PatternBottom3Stage }

func (s *bottom3StageSizing) Size(snap *BreadthSnapshot, state *SizingState, date time.Time) SizingDecision {
	if snap == nil {
		return s.fallback()
	}

	var size float64
	var stage string
	switch {
	case snap.BearishSignal:
		size, stage = normalSize*bearishStageMult, "stage1_bearish"
	case snap.IsTrough8MABelow04:
		size, stage = normalSize*bottom8MAMult, "stage2_8ma_bottom"
		state.BottomDetected = true
		state.BottomDate = date
	case snap.IsTrough && state.bottomActive(date):
		size, stage = normalSize*bottom200MAMult, "stage3_200ma_bottom"
	case state.bottomActive(date) && snap.Breadth8MA < 0.5:
		size, stage = normalSize*bottomContinueMult, "stage2_continuation"
	default:
		size, stage = normalSize, "normal"
		// Bottom memory resets once the market has recovered.
		if snap.Breadth8MA > 0.6 {
			state.BottomDetected = false
			state.BottomDate = time.Time{}
		}
	}

	return SizingDecision{
		SizePct: s.clamp(size),
		Reason:  fmt.Sprintf("%s_%.3f", stage, snap.Breadth8MA),
	}
}
