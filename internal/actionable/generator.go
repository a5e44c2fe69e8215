package actionable

import (
	"fmt"
	"strings"

	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/types"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	dominantShare   = 0.35
	lowRate         = 20.0
	minCallsForRate = 5
)

// Generate derives one headline recommendation from weekly stats.
func Generate(w aggregator.Weekly) ActionCard {
	if w.TotalCalls == 0 {
		return ActionCard{
			Insight: "No calls processed this week",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		}
	}

	if len(w.Topics) > 0 && w.Topics[0].Topic != types.GeneralCall {
		top := w.Topics[0]
		share := float64(top.Count) / float64(w.TotalCalls)
		if share >= dominantShare {
			card := ActionCard{
				Insight: fmt.Sprintf("%s appears in %.0f%% of calls this week", top.Topic, share*100),
				Action:  fmt.Sprintf("Publish self-service guidance for %s", top.Topic),
				Impact:  "Fewer repeat calls on the dominant topic",
			}
			if strings.HasSuffix(top.Topic, "_sales") {
				card.Action = fmt.Sprintf("Route %s leads to a dedicated desk and prepare follow-up scripts", strings.TrimSuffix(top.Topic, "_sales"))
				card.Impact = "Faster follow-up on the strongest demand"
			}
			return card
		}
	}

	if w.TotalCalls >= minCallsForRate && w.ConversionRate < lowRate {
		return ActionCard{
			Insight: fmt.Sprintf("Low positive call rate (%.2f%%)", w.ConversionRate),
			Action:  "Review call concerns and coach agents on objection handling",
			Impact:  "Lift outcomes on existing call volume",
		}
	}

	return ActionCard{
		Insight: "No strong pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
