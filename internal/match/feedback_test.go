package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hbarker/grant-radar/internal/models"
)

func TestBuildSignals(t *testing.T) {
	events := []models.FeedbackEvent{
		{Verdict: models.VerdictLiked, Sectors: []string{"youth", "Community"}},
		{Verdict: models.VerdictLiked, Sectors: []string{"youth"}},
		{Verdict: models.VerdictDisliked, Sectors: []string{"infrastructure"}},
		{Verdict: models.VerdictDisliked, Sectors: []string{"infrastructure", ""}},
	}

	signals := BuildSignals(events, DefaultWeights())

	assert.Equal(t, 6.0, signals.SectorBoosts["youth"])
	assert.Equal(t, 3.0, signals.SectorBoosts["community"])
	assert.Equal(t, 4.0, signals.SectorPenalties["infrastructure"])
	assert.NotContains(t, signals.SectorPenalties, "")
	assert.False(t, signals.Empty())
}

func TestBuildSignalsEmptyHistory(t *testing.T) {
	signals := BuildSignals(nil, DefaultWeights())
	assert.True(t, signals.Empty())
}

func TestBuildSignalsFeedsScorer(t *testing.T) {
	w := DefaultWeights()
	s := NewScorer(w)
	g, p := localYouthGrant(), manchesterProfile()

	base := s.Score(g, p, models.FeedbackSignals{})

	liked := BuildSignals([]models.FeedbackEvent{
		{Verdict: models.VerdictLiked, Sectors: []string{"youth"}},
	}, w)
	assert.Greater(t, s.Score(g, p, liked).Score, base.Score)

	disliked := BuildSignals([]models.FeedbackEvent{
		{Verdict: models.VerdictDisliked, Sectors: []string{"youth"}},
	}, w)
	assert.Less(t, s.Score(g, p, disliked).Score, base.Score)
}
