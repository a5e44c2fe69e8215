package report

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/types"
)

var processedAt = time.Date(2025, 12, 10, 9, 30, 0, 0, time.UTC)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func row(id string, converted, sales bool) types.ReportRow {
	return types.ReportRow{
		File:        id + ".wav",
		CallID:      id,
		ProcessedAt: processedAt,
		Summary:     "Call Purpose:\n- test",
		Sentiment:   types.SentimentPositive,
		Intents:     []string{"insurance_sales"},
		Converted:   converted,
		SalesCall:   sales,
	}
}

func TestExportRoutesRowsToSinks(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)

	require.NoError(t, e.Export(row("call_1", true, true)))
	require.NoError(t, e.Export(row("call_2", false, false)))

	overall := readRows(t, e.OverallPath())
	require.Len(t, overall, 3)
	assert.Equal(t, Header, overall[0])
	assert.Equal(t, []string{"call_1.wav", "call_1", "2025-12-10T09:30:00Z", "Call Purpose:\n- test", "positive", `["insurance_sales"]`, "TRUE"}, overall[1])
	assert.Equal(t, "call_2", overall[2][1])

	assert.Len(t, readRows(t, e.ConvertedPath()), 2)
	assert.Len(t, readRows(t, e.SalesPath()), 2)
	assert.Len(t, readRows(t, e.WeeklyPath(processedAt)), 3)
	assert.Len(t, readRows(t, e.WeeklySalesPath(processedAt)), 2)
}

func TestWeeklyPathsUseISOWeek(t *testing.T) {
	e := NewExporter("out", nil)
	// Jan 1 2027 is a Friday in ISO week 53 of 2026
	d := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "weekly_calls_2026_W53.xlsx"), e.WeeklyPath(d))
	assert.Equal(t, filepath.Join("out", "weekly_sales_2025_W50.xlsx"), e.WeeklySalesPath(processedAt))
}

func TestExportFailureIsReported(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	e := NewExporter(blocker, nil)
	var failed []string
	e.OnFailure = func(sink string, err error) { failed = append(failed, sink) }

	err := e.Export(row("call_1", false, true))
	assert.Error(t, err)
	assert.Equal(t, []string{SinkOverall, SinkSales, SinkWeekly, SinkWeeklySales}, failed)
}

func TestConcurrentExportsKeepEveryRow(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.Export(row("call", false, false)))
		}(i)
	}
	wg.Wait()
	assert.Len(t, readRows(t, e.OverallPath()), 7)
}
