package strategy

import (
	"sort"
	"time"

	"earnings-backtest/pkg/utils"
)

// snapshotLookbackDays is how far Snapshot searches around a date before
// giving up. Breadth series have weekend and holiday gaps.
const snapshotLookbackDays = 5

// StaticBreadthSource serves breadth snapshots from a preloaded series.
type StaticBreadthSource struct {
	byDate map[time.Time]BreadthSnapshot
}

func NewStaticBreadthSource(snaps []BreadthSnapshot) *StaticBreadthSource {
	src := &StaticBreadthSource{byDate: make(map[time.Time]BreadthSnapshot, len(snaps))}
	for _, s := range snaps {
		src.byDate[utils.Day(s.Date)] = s
	}
	return src
}

// Snapshot returns the observation on the date, or the nearest one within the
// lookback tolerance.
func (s *StaticBreadthSource) Snapshot(date time.Time) (BreadthSnapshot, bool) {
	d := utils.Day(date)
	if snap, ok := s.byDate[d]; ok {
		return snap, true
	}
	for offset := 1; offset <= snapshotLookbackDays; offset++ {
		for _, delta := range []int{-offset, offset} {
			if snap, ok := s.byDate[d.AddDate(0, 0, delta)]; ok {
				return snap, true
			}
		}
	}
	return BreadthSnapshot{}, false
}

// Dates returns the sorted observation dates, mainly for diagnostics.
func (s *StaticBreadthSource) Dates() []time.Time {
	out := make([]time.Time, 0, len(s.byDate))
	for d := range s.byDate {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
