package stats

import (
	"time"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

// Batch accumulates predictions between flushes.
type Batch struct {
	Counts      map[models.Outcome]int64
	DurationMS  int64
	Clients     map[string]struct{}
	LastOutcome models.Outcome
	LastAt      time.Time
}

func NewBatch() *Batch {
	return &Batch{
		Counts:  make(map[models.Outcome]int64),
		Clients: make(map[string]struct{}),
	}
}

// Add folds rec into the batch.
func (b *Batch) Add(rec *models.PredictionRecord) {
	b.Counts[rec.Outcome]++
	b.DurationMS += rec.DurationMS
	if rec.ClientIP != "" {
		b.Clients[rec.ClientIP] = struct{}{}
	}
	if !rec.CreatedAt.Before(b.LastAt) {
		b.LastAt = rec.CreatedAt
		b.LastOutcome = rec.Outcome
	}
}

// Merge folds other into b. Used to requeue a batch whose flush failed.
func (b *Batch) Merge(other *Batch) {
	for outcome, n := range other.Counts {
		b.Counts[outcome] += n
	}
	b.DurationMS += other.DurationMS
	for ip := range other.Clients {
		b.Clients[ip] = struct{}{}
	}
	if other.LastAt.After(b.LastAt) {
		b.LastAt = other.LastAt
		b.LastOutcome = other.LastOutcome
	}
}

// Total is the number of predictions in the batch.
func (b *Batch) Total() int64 {
	var n int64
	for _, c := range b.Counts {
		n += c
	}
	return n
}

func (b *Batch) Empty() bool {
	return b.Total() == 0
}
