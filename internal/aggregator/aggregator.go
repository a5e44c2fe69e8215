// Package aggregator computes call statistics and trending topics over a
// time window.
package aggregator

import (
	"context"
	"math"
	"sort"
	"time"

	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

// TopN is how many topics a ranking returns.
const TopN = 10

// Source is the read side of the store the engine depends on.
type Source interface {
	Count(ctx context.Context, since time.Time) (store.Counts, error)
	IntentSets(ctx context.Context, since time.Time) ([][]string, error)
}

type Engine struct {
	src Source
}

func New(src Source) *Engine {
	return &Engine{src: src}
}

// Weekly is the stats payload for the current week.
type Weekly struct {
	types.Stats
	Topics    []types.TopicCount `json:"topics"`
	WeekStart time.Time          `json:"week_start"`
	WeekEnd   time.Time          `json:"week_end"`
}

// StartOfWeek returns the most recent Monday 00:00 UTC at or before now.
func StartOfWeek(now time.Time) time.Time {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7
	d := now.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Weekly aggregates records created in [StartOfWeek(now), now].
func (e *Engine) Weekly(ctx context.Context, now time.Time) (Weekly, error) {
	start := StartOfWeek(now)
	c, err := e.src.Count(ctx, start)
	if err != nil {
		return Weekly{}, err
	}
	sets, err := e.src.IntentSets(ctx, start)
	if err != nil {
		return Weekly{}, err
	}
	return Weekly{
		Stats: types.Stats{
			TotalCalls:     c.Total,
			PositiveCalls:  c.Positive,
			ConversionRate: ConversionRate(c.Positive, c.Total),
		},
		Topics:    RankTopics(sets, c.Total),
		WeekStart: start,
		WeekEnd:   now.UTC(),
	}, nil
}

// Overall aggregates every live record.
func (e *Engine) Overall(ctx context.Context) (types.Stats, error) {
	c, err := e.src.Count(ctx, time.Time{})
	if err != nil {
		return types.Stats{}, err
	}
	return types.Stats{
		TotalCalls:     c.Total,
		PositiveCalls:  c.Positive,
		ConversionRate: ConversionRate(c.Positive, c.Total),
	}, nil
}

// ConversionRate is positive/total as a percentage rounded to two places.
func ConversionRate(positive, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(positive)/float64(total)*100*100) / 100
}

// RankTopics counts each call at most once per topic, sorts by count
// descending then name, keeps the top TopN, and clamps every count to total.
func RankTopics(sets [][]string, total int64) []types.TopicCount {
	counts := map[string]int64{}
	for _, set := range sets {
		for _, topic := range types.DedupeIntents(set) {
			counts[topic]++
		}
	}

	out := make([]types.TopicCount, 0, len(counts))
	for topic, n := range counts {
		if n > total {
			// the count and the intent scan are separate reads; writes
			// landing between them must not produce an impossible number
			n = total
		}
		if n <= 0 {
			continue
		}
		out = append(out, types.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}
