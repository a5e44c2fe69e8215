package types

import (
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

const (
	// GeneralCall is the intent assigned when no keyword matches.
	GeneralCall = "general_call"
	// UnknownCustomer is stored when the uploader did not identify the customer.
	UnknownCustomer = "NA"
	salesSuffix     = "_sales"
)

// CallRecord is the unit persisted per processed upload.
type CallRecord struct {
	CallID     string    `json:"call_id"`
	CustomerID string    `json:"customer_id"`
	Transcript string    `json:"transcript"`
	Sentiment  Sentiment `json:"sentiment"`
	Intents    []string  `json:"intents"`
	Summary    string    `json:"summary"`
	Converted  bool      `json:"converted"`
	SalesCall  bool      `json:"sales_call"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsSalesIntents reports whether any intent belongs to a "*_sales" category.
func IsSalesIntents(intents []string) bool {
	for _, i := range intents {
		if strings.HasSuffix(i, salesSuffix) {
			return true
		}
	}
	return false
}

// DedupeIntents collapses repeated tags keeping first-seen order. Empty tags are dropped.
func DedupeIntents(intents []string) []string {
	seen := make(map[string]struct{}, len(intents))
	out := make([]string, 0, len(intents))
	for _, i := range intents {
		if i == "" {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// TopicCount is one row of the trending topics ranking.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int64  `json:"count"`
}

// Stats is the result of a windowed aggregation.
type Stats struct {
	TotalCalls     int64   `json:"total_calls"`
	PositiveCalls  int64   `json:"positive_calls"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ReportRow is the flat row handed to the export sinks.
type ReportRow struct {
	File        string
	CallID      string
	ProcessedAt time.Time
	Summary     string
	Sentiment   Sentiment
	Intents     []string
	Converted   bool
	SalesCall   bool
}
