package strategy

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"earnings-backtest/pkg/utils"
)

// LoadBreadthCSV reads a market-breadth series exported with columns
// Date, Breadth_8MA, Bearish_Signal, Is_Peak, Is_Trough, Is_Trough_8MA_Below_04.
// Column order is resolved from the header, not assumed.
func LoadBreadthCSV(path string) (*StaticBreadthSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open breadth csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read breadth csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("breadth csv %s has no data rows", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	dateIdx, ok := col["date"]
	if !ok {
		return nil, fmt.Errorf("breadth csv %s missing Date column", path)
	}
	maIdx, ok := col["breadth_8ma"]
	if !ok {
		return nil, fmt.Errorf("breadth csv %s missing Breadth_8MA column", path)
	}

	snaps := make([]BreadthSnapshot, 0, len(rows)-1)
	for _, row := range rows[1:] {
		date, err := utils.ParseDate(row[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("breadth csv %s: bad date %q: %w", path, row[dateIdx], err)
		}
		ma, err := strconv.ParseFloat(row[maIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("breadth csv %s: bad breadth value %q: %w", path, row[maIdx], err)
		}
		snaps = append(snaps, BreadthSnapshot{
			Date:               date,
			Breadth8MA:         ma,
			BearishSignal:      boolColumn(row, col, "bearish_signal"),
			IsTrough:           boolColumn(row, col, "is_trough"),
			IsTrough8MABelow04: boolColumn(row, col, "is_trough_8ma_below_04"),
		})
	}
	return NewStaticBreadthSource(snaps), nil
}

func boolColumn(row []string, col map[string]int, name string) bool {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(row[i]), "true")
}
