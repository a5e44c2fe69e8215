// Package dataset reads batch manifests: spreadsheets listing calls to
// ingest, either as audio references or as ready transcripts.
package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/logger"
)

// Entry is one manifest row. At least one of Audio or Transcript is set.
type Entry struct {
	Row        int
	Audio      string
	CallID     string
	CustomerID string
	Transcript string
}

type columns struct {
	audio, callID, customer, transcript int
}

// detect picks columns by header heuristics; the first match wins.
func detect(header []string) columns {
	c := columns{audio: -1, callID: -1, customer: -1, transcript: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "transcript") || l == "text":
			if c.transcript == -1 {
				c.transcript = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "call") && strings.Contains(l, "link") || strings.Contains(l, "url") || strings.Contains(l, "path") || l == "file":
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "customer") || strings.Contains(l, "client"):
			if c.customer == -1 {
				c.customer = i
			}
		case strings.Contains(l, "call id") || strings.Contains(l, "call_id") || strings.Contains(l, "callid") || l == "id":
			if c.callID == -1 {
				c.callID = i
			}
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// Load reads the first sheet of an xlsx manifest. Rows with neither an
// audio reference nor a transcript are skipped.
func Load(path string, log *logger.Logger) ([]Entry, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.Component("dataset")

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detect(rows[0])
	if cols.audio == -1 && cols.transcript == -1 {
		return nil, fmt.Errorf("no audio or transcript column in header %v", rows[0])
	}

	var out []Entry
	skipped := 0
	for i, r := range rows[1:] {
		e := Entry{
			Row:        i + 2,
			Audio:      cell(r, cols.audio),
			CallID:     cell(r, cols.callID),
			CustomerID: cell(r, cols.customer),
			Transcript: cell(r, cols.transcript),
		}
		if e.Audio == "" && e.Transcript == "" {
			skipped++
			continue
		}
		out = append(out, e)
	}
	log.WithField("path", path).WithField("entries", len(out)).WithField("skipped", skipped).Info("manifest loaded")
	return out, nil
}
