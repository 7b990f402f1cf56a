package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

// GrantWriter is the slice of the store the orchestrator needs.
type GrantWriter interface {
	UpsertGrant(ctx context.Context, g models.NormalizedGrant) error
}

// Orchestrator fans a crawl out across source adapters. Sources are
// independent: one source failing, hanging, or panicking never affects its
// siblings, and every source always yields exactly one CrawlOutcome.
type Orchestrator struct {
	adapters  []SourceAdapter
	store     GrantWriter
	batchSize int
	log       *zap.Logger
}

func NewOrchestrator(adapters []SourceAdapter, store GrantWriter, batchSize int, log *zap.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = len(adapters)
	}
	return &Orchestrator{
		adapters:  adapters,
		store:     store,
		batchSize: batchSize,
		log:       log,
	}
}

// BatchCount reports how many batches the configured sources split into.
func (o *Orchestrator) BatchCount() int {
	if len(o.adapters) == 0 {
		return 0
	}
	return (len(o.adapters) + o.batchSize - 1) / o.batchSize
}

// Run crawls one batch of sources concurrently. A negative batch index means
// all sources. Outcomes come back in configured source order regardless of
// completion order, so runs are comparable across days.
func (o *Orchestrator) Run(ctx context.Context, batch int) []CrawlOutcome {
	selected := o.selectBatch(batch)
	if len(selected) == 0 {
		return nil
	}

	started := time.Now()
	o.log.Info("crawl starting",
		zap.Int("batch", batch),
		zap.Int("sources", len(selected)))

	type indexed struct {
		pos     int
		outcome CrawlOutcome
	}

	results := make(chan indexed, len(selected))
	var wg sync.WaitGroup

	for i, adapter := range selected {
		wg.Add(1)
		go func(pos int, a SourceAdapter) {
			defer wg.Done()
			results <- indexed{pos: pos, outcome: o.crawlSource(ctx, a)}
		}(i, adapter)
	}

	wg.Wait()
	close(results)

	outcomes := make([]CrawlOutcome, len(selected))
	for r := range results {
		outcomes[r.pos] = r.outcome
	}

	o.log.Info("crawl finished",
		zap.Int("batch", batch),
		zap.Int("sources", len(selected)),
		zap.Duration("elapsed", time.Since(started)))

	return outcomes
}

// selectBatch returns the adapters for one batch index, or all of them for a
// negative index. An out-of-range index selects nothing.
func (o *Orchestrator) selectBatch(batch int) []SourceAdapter {
	if batch < 0 {
		return o.adapters
	}
	start := batch * o.batchSize
	if start >= len(o.adapters) {
		return nil
	}
	end := start + o.batchSize
	if end > len(o.adapters) {
		end = len(o.adapters)
	}
	return o.adapters[start:end]
}

// crawlSource runs one adapter end to end. It never returns an error: every
// failure mode, panics included, lands in the outcome's Error field.
func (o *Orchestrator) crawlSource(ctx context.Context, adapter SourceAdapter) (outcome CrawlOutcome) {
	source := adapter.Source()
	outcome = CrawlOutcome{Source: source}
	log := o.log.With(zap.String("source", source))

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("source adapter panicked", zap.Any("panic", recovered))
			ce := Classify(source, fmt.Errorf("adapter panic: %v", recovered))
			outcome.Error = newOutcomeError(ce)
		}
	}()

	grants, err := adapter.Fetch(ctx)
	if err != nil {
		ce := Classify(source, err)
		log.Warn("source fetch failed",
			zap.String("kind", string(ce.Kind)),
			zap.Error(ce.Err))
		outcome.Error = newOutcomeError(ce)
		return outcome
	}

	outcome.FetchedCount = len(grants)

	for _, g := range grants {
		if err := o.store.UpsertGrant(ctx, g); err != nil {
			log.Error("upsert failed",
				zap.String("external_id", g.ExternalID),
				zap.Error(err))
			continue
		}
		outcome.UpsertedCount++
	}

	log.Info("source crawled",
		zap.Int("fetched", outcome.FetchedCount),
		zap.Int("upserted", outcome.UpsertedCount))

	return outcome
}
