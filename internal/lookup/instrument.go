package lookup

import (
	"context"
	"time"

	"kbbot/internal/domain"
	"kbbot/internal/metrics"
)

// Instrument records latency and failures of every lookup.
func Instrument(next domain.Answerer) domain.Answerer {
	return domain.AnswerFunc(func(ctx context.Context, text string) (string, error) {
		start := time.Now()
		answer, err := next.Answer(ctx, text)
		metrics.LookupLatency.ObserveSince(start)
		if err != nil {
			metrics.LookupErrorsTotal.Inc()
		}
		return answer, err
	})
}
