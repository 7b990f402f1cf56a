package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

type fakeAdapter struct {
	source string
	grants []models.NormalizedGrant
	err    error
	panics bool
}

func (f *fakeAdapter) Source() string { return f.source }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]models.NormalizedGrant, error) {
	if f.panics {
		panic("selector exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.grants, nil
}

type fakeStore struct {
	mu       sync.Mutex
	upserted []string
	failID   string
}

func (s *fakeStore) UpsertGrant(_ context.Context, g models.NormalizedGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ExternalID == s.failID {
		return errors.New("constraint violation")
	}
	s.upserted = append(s.upserted, g.ExternalID)
	return nil
}

func grantFixture(source, slug string) models.NormalizedGrant {
	return models.NormalizedGrant{
		ExternalID: ExternalID(source, slug),
		Source:     source,
		Title:      slug,
	}
}

func TestOrchestratorIsolatesFailures(t *testing.T) {
	adapters := []SourceAdapter{
		&fakeAdapter{source: "alpha", grants: []models.NormalizedGrant{
			grantFixture("alpha", "one"),
			grantFixture("alpha", "two"),
		}},
		&fakeAdapter{source: "broken", err: transportError("broken", errors.New("connection refused"))},
		&fakeAdapter{source: "gamma", grants: []models.NormalizedGrant{
			grantFixture("gamma", "three"),
		}},
	}
	store := &fakeStore{}

	o := NewOrchestrator(adapters, store, 0, zap.NewNop())
	outcomes := o.Run(context.Background(), -1)

	require.Len(t, outcomes, 3)

	// Outcomes keep configured source order regardless of goroutine timing.
	assert.Equal(t, "alpha", outcomes[0].Source)
	assert.Equal(t, "broken", outcomes[1].Source)
	assert.Equal(t, "gamma", outcomes[2].Source)

	assert.Equal(t, 2, outcomes[0].FetchedCount)
	assert.Equal(t, 2, outcomes[0].UpsertedCount)
	assert.Nil(t, outcomes[0].Error)

	require.NotNil(t, outcomes[1].Error)
	assert.Equal(t, ErrKindTransport, outcomes[1].Error.Kind)
	assert.Zero(t, outcomes[1].FetchedCount)

	assert.Equal(t, 1, outcomes[2].UpsertedCount)
	assert.Nil(t, outcomes[2].Error)

	assert.Len(t, store.upserted, 3)
}

func TestOrchestratorRecoversPanic(t *testing.T) {
	adapters := []SourceAdapter{
		&fakeAdapter{source: "steady", grants: []models.NormalizedGrant{grantFixture("steady", "a")}},
		&fakeAdapter{source: "panicky", panics: true},
	}
	store := &fakeStore{}

	o := NewOrchestrator(adapters, store, 0, zap.NewNop())
	outcomes := o.Run(context.Background(), -1)

	require.Len(t, outcomes, 2)
	assert.Nil(t, outcomes[0].Error)
	require.NotNil(t, outcomes[1].Error)
	assert.Contains(t, outcomes[1].Error.Message, "panic")
}

func TestOrchestratorUpsertFailureCountsAsFetched(t *testing.T) {
	adapters := []SourceAdapter{
		&fakeAdapter{source: "alpha", grants: []models.NormalizedGrant{
			grantFixture("alpha", "good"),
			grantFixture("alpha", "bad"),
		}},
	}
	store := &fakeStore{failID: "alpha_bad"}

	o := NewOrchestrator(adapters, store, 0, zap.NewNop())
	outcomes := o.Run(context.Background(), -1)

	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].FetchedCount)
	assert.Equal(t, 1, outcomes[0].UpsertedCount)
	assert.Nil(t, outcomes[0].Error)
}

func TestOrchestratorBatchSelection(t *testing.T) {
	adapters := []SourceAdapter{
		&fakeAdapter{source: "a"},
		&fakeAdapter{source: "b"},
		&fakeAdapter{source: "c"},
		&fakeAdapter{source: "d"},
		&fakeAdapter{source: "e"},
	}
	o := NewOrchestrator(adapters, &fakeStore{}, 2, zap.NewNop())

	assert.Equal(t, 3, o.BatchCount())

	outcomes := o.Run(context.Background(), 0)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].Source)
	assert.Equal(t, "b", outcomes[1].Source)

	outcomes = o.Run(context.Background(), 2)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "e", outcomes[0].Source)

	assert.Empty(t, o.Run(context.Background(), 7))
}

func TestOrchestratorCapsOutcomeErrorMessage(t *testing.T) {
	long := transportError("verbose", errors.New(strings.Repeat("x", 2000)))
	adapters := []SourceAdapter{
		&fakeAdapter{source: "verbose", err: long},
	}

	o := NewOrchestrator(adapters, &fakeStore{}, 0, zap.NewNop())
	outcomes := o.Run(context.Background(), -1)

	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Error)
	assert.LessOrEqual(t, len(outcomes[0].Error.Message), maxOutcomeErrorLen)
	assert.True(t, strings.HasSuffix(outcomes[0].Error.Message, "..."))
}

func TestClassifyPassesThroughCrawlErrors(t *testing.T) {
	ce := Classify("src", transportError("src", errors.New("dial tcp")))
	assert.Equal(t, ErrKindTransport, ce.Kind)

	ce = Classify("src", errors.New("unexpected structure"))
	assert.Equal(t, ErrKindParse, ce.Kind)

	ce = Classify("src", emptyResultError("src"))
	assert.Equal(t, ErrKindEmpty, ce.Kind)
}
