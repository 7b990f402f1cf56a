package match

import (
	"strings"

	"github.com/hbarker/grant-radar/internal/models"
)

// BuildSignals aggregates an organisation's feedback history into per-sector
// weights for the scorer. Liked grants push their sectors up, disliked ones
// push them down; the scorer bounds the final adjustment.
func BuildSignals(events []models.FeedbackEvent, w Weights) models.FeedbackSignals {
	signals := models.FeedbackSignals{
		SectorBoosts:    map[string]float64{},
		SectorPenalties: map[string]float64{},
	}

	for _, ev := range events {
		for _, sector := range ev.Sectors {
			key := strings.ToLower(strings.TrimSpace(sector))
			if key == "" {
				continue
			}
			switch ev.Verdict {
			case models.VerdictLiked:
				signals.SectorBoosts[key] += w.FeedbackLikedWeight
			case models.VerdictDisliked:
				signals.SectorPenalties[key] += w.FeedbackDislikedWeight
			}
		}
	}

	return signals
}
