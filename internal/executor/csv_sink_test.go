package executor

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSinkWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(context.Background(), entryWithProfit("t1", 1.5)))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "t1", rows[1][0])
	assert.Equal(t, "USDT>BTC>ETH>USDT", rows[1][2])
	assert.Equal(t, "1.5", rows[1][6])
}

func TestCSVSinkAppendsWithoutDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), entryWithProfit("t1", 1)))
	require.NoError(t, sink.Close())

	// Reopening an existing file must not write a second header.
	sink, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), entryWithProfit("t2", 2)))
	require.NoError(t, sink.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "t1", rows[1][0])
	assert.Equal(t, "t2", rows[2][0])
}
