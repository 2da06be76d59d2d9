package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticBreadthSource_SnapshotTolerance(t *testing.T) {
	src := NewStaticBreadthSource([]BreadthSnapshot{
		{Date: day("2024-02-02"), Breadth8MA: 0.55},
		{Date: day("2024-02-09"), Breadth8MA: 0.45},
	})

	// Exact hit.
	snap, ok := src.Snapshot(day("2024-02-02"))
	require.True(t, ok)
	assert.Equal(t, 0.55, snap.Breadth8MA)

	// A weekend date resolves to the nearest observation.
	snap, ok = src.Snapshot(day("2024-02-04"))
	require.True(t, ok)
	assert.Equal(t, 0.55, snap.Breadth8MA)

	// Nothing within the tolerance window.
	_, ok = src.Snapshot(day("2024-02-20"))
	assert.False(t, ok)

	dates := src.Dates()
	require.Len(t, dates, 2)
	assert.Equal(t, day("2024-02-02"), dates[0])
	assert.Equal(t, day("2024-02-09"), dates[1])
}

func TestLoadBreadthCSV(t *testing.T) {
	csv := "Date,Breadth_8MA,Bearish_Signal,Is_Peak,Is_Trough,Is_Trough_8MA_Below_04\n" +
		"2024-02-02,0.55,False,False,False,False\n" +
		"2024-02-05,0.38,True,False,True,True\n"
	path := filepath.Join(t.TempDir(), "breadth.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	src, err := LoadBreadthCSV(path)
	require.NoError(t, err)

	snap, ok := src.Snapshot(day("2024-02-05"))
	require.True(t, ok)
	assert.Equal(t, 0.38, snap.Breadth8MA)
	assert.True(t, snap.BearishSignal)
	assert.True(t, snap.IsTrough)
	assert.True(t, snap.IsTrough8MABelow04)

	snap, ok = src.Snapshot(day("2024-02-02"))
	require.True(t, ok)
	assert.False(t, snap.BearishSignal)
}

func TestLoadBreadthCSV_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breadth.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Other\n2024-02-02,1\n"), 0o644))

	_, err := LoadBreadthCSV(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Breadth_8MA")
}
