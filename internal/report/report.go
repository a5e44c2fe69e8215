// Package report appends processed calls to spreadsheet workbooks.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

const sheet = "Sheet1"

// Sink names, also used as metric labels.
const (
	SinkOverall     = "overall"
	SinkConverted   = "converted"
	SinkSales       = "sales"
	SinkWeekly      = "weekly"
	SinkWeeklySales = "weekly_sales"
)

var Header = []string{"file", "call_id", "processed_at", "summary", "sentiment", "intents", "converted"}

type Exporter struct {
	dir string
	log *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// OnFailure is called once per sink that could not be written.
	OnFailure func(sink string, err error)
}

func NewExporter(dir string, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Discard()
	}
	return &Exporter{dir: dir, log: log.Component("report"), locks: map[string]*sync.Mutex{}}
}

func (e *Exporter) OverallPath() string   { return filepath.Join(e.dir, "analytics_results.xlsx") }
func (e *Exporter) ConvertedPath() string { return filepath.Join(e.dir, "converted_calls.xlsx") }
func (e *Exporter) SalesPath() string     { return filepath.Join(e.dir, "sales_crm.xlsx") }

// WeeklyPath names the workbook for the ISO week containing t.
func (e *Exporter) WeeklyPath(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return filepath.Join(e.dir, fmt.Sprintf("weekly_calls_%d_W%d.xlsx", y, w))
}

func (e *Exporter) WeeklySalesPath(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return filepath.Join(e.dir, fmt.Sprintf("weekly_sales_%d_W%d.xlsx", y, w))
}

// Export appends row to every sink it qualifies for. Each failing sink is
// logged and reported; the joined error is informational only.
func (e *Exporter) Export(row types.ReportRow) error {
	type target struct {
		sink string
		path string
		want bool
	}
	targets := []target{
		{SinkOverall, e.OverallPath(), true},
		{SinkConverted, e.ConvertedPath(), row.Converted},
		{SinkSales, e.SalesPath(), row.SalesCall},
		{SinkWeekly, e.WeeklyPath(row.ProcessedAt), true},
		{SinkWeeklySales, e.WeeklySalesPath(row.ProcessedAt), row.SalesCall},
	}
	values, err := cells(row)
	if err != nil {
		return err
	}

	var errs []error
	for _, t := range targets {
		if !t.want {
			continue
		}
		if err := e.appendRow(t.path, values); err != nil {
			e.log.WithError(err).WithField("sink", t.sink).WithField("call_id", row.CallID).Warn("report append failed")
			if e.OnFailure != nil {
				e.OnFailure(t.sink, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.sink, err))
		}
	}
	return errors.Join(errs...)
}

func cells(row types.ReportRow) ([]any, error) {
	intents := row.Intents
	if intents == nil {
		intents = []string{}
	}
	b, err := json.Marshal(intents)
	if err != nil {
		return nil, fmt.Errorf("encode intents: %w", err)
	}
	return []any{
		row.File,
		row.CallID,
		row.ProcessedAt.UTC().Format(time.RFC3339),
		row.Summary,
		string(row.Sentiment),
		string(b),
		row.Converted,
	}, nil
}

func (e *Exporter) lock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[path]
	if !ok {
		m = &sync.Mutex{}
		e.locks[path] = m
	}
	return m
}

// appendRow opens or creates the workbook, writing the header on create.
func (e *Exporter) appendRow(path string, values []any) error {
	m := e.lock(path)
	m.Lock()
	defer m.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var f *excelize.File
	next := 1
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return fmt.Errorf("open workbook: %w", err)
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			f.Close()
			return fmt.Errorf("read rows: %w", err)
		}
		next = len(rows) + 1
	} else {
		f = excelize.NewFile()
		header := make([]any, len(Header))
		for i, h := range Header {
			header[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			f.Close()
			return err
		}
		next = 2
	}
	defer f.Close()

	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return err
	}
	return f.SaveAs(path)
}
