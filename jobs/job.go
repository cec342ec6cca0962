package jobs

import (
	"context"
)

// Job is a piece of logic
type Job interface {
	// Do job. The runID identifies this run in logs. Data argument holds arbitrary
	// data. It is up to each job to define what data it takes.
	Do(ctx context.Context, runID string, data []byte) error
}
