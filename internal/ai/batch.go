package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

const (
	defaultBatchAttempts = 3
	defaultBackoffBase   = 4 * time.Second
	defaultBackoffCap    = 10 * time.Second
)

// BatchTranscriber wraps a transcription call with bounded retries and a
// structural completeness check: an attempt whose page count differs from
// the expected count is treated as failed. There is no partial acceptance;
// an incomplete batch is entirely failed.
type BatchTranscriber struct {
	inner    ITranscriber
	attempts int
	base     time.Duration
	cap      time.Duration
	sleep    func(time.Duration)
}

func NewBatchTranscriber(inner ITranscriber) *BatchTranscriber {
	return &BatchTranscriber{
		inner:    inner,
		attempts: defaultBatchAttempts,
		base:     defaultBackoffBase,
		cap:      defaultBackoffCap,
		sleep:    time.Sleep,
	}
}

func (b *BatchTranscriber) Transcribe(ctx context.Context, doc []byte, pageOffset, pageCount int) ([]Page, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.Int("page_offset", pageOffset),
		zap.Int("page_count", pageCount),
	)
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		pages, err := b.inner.Transcribe(ctx, doc, pageOffset, pageCount)
		if err == nil && len(pages) != pageCount {
			err = fmt.Errorf("%w: incomplete batch: want %d pages, got %d",
				apperr.ErrTransientService, pageCount, len(pages))
		}
		if err == nil {
			return pages, nil
		}
		lastErr = err
		logger.Warn("transcription attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < b.attempts {
			b.sleep(b.backoff(attempt))
		}
	}
	return nil, fmt.Errorf("transcription batch failed after %d attempts: %w", b.attempts, lastErr)
}

func (b *BatchTranscriber) backoff(attempt int) time.Duration {
	delay := b.base << (attempt - 1)
	if delay > b.cap {
		delay = b.cap
	}
	return delay
}
