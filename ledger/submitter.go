package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// defaultMaxRetries bounds retries so a wedged ledger does not leak tasks
// (spec.md §5 "Cancellation and timeouts").
const defaultMaxRetries = 5

const defaultBaseBackoff = 500 * time.Millisecond
const defaultMaxBackoff = 30 * time.Second

// Submitter serializes on-ledger transactions per (address, secret) and
// retries transient failures with backoff, exactly as spec.md §4.10
// describes. A single Submitter instance is shared by every account that
// signs from the same server address.
type Submitter struct {
	client Client
	logger *slog.Logger

	mu      sync.Mutex // serializes prepare->sign->submit->wait per address
	backoff time.Duration
}

// NewSubmitter returns a Submitter that serializes submissions through client.
func NewSubmitter(client Client, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{client: client, logger: logger, backoff: defaultBaseBackoff}
}

// SubmitCreate serializes and retries a preparePaymentChannelCreate.
func (s *Submitter) SubmitCreate(ctx context.Context, req ChannelCreateRequest) (*TxResult, error) {
	return s.submit(ctx, func(ctx context.Context) (*TxResult, error) {
		return s.client.PreparePaymentChannelCreate(ctx, req)
	})
}

// SubmitClaim serializes and retries a preparePaymentChannelClaim.
func (s *Submitter) SubmitClaim(ctx context.Context, req ChannelClaimRequest) (*TxResult, error) {
	return s.submit(ctx, func(ctx context.Context) (*TxResult, error) {
		return s.client.PreparePaymentChannelClaim(ctx, req)
	})
}

// SubmitFund serializes and retries a preparePaymentChannelFund, topping up
// an already-open channel's escrow.
func (s *Submitter) SubmitFund(ctx context.Context, req ChannelFundRequest) (*TxResult, error) {
	return s.submit(ctx, func(ctx context.Context) (*TxResult, error) {
		return s.client.PreparePaymentChannelFund(ctx, req)
	})
}

func (s *Submitter) submit(ctx context.Context, do func(context.Context) (*TxResult, error)) (*TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := defaultBaseBackoff
	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		result, err := do(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var terminal *TerminalError
		if errors.As(err, &terminal) {
			return nil, err
		}
		if !errors.Is(err, ErrTransient) {
			// Not a recognized transient failure; surface immediately rather
			// than retrying an error the caller cannot recover from.
			return nil, err
		}

		s.logger.Warn("ledger submission failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > defaultMaxBackoff {
			delay = defaultMaxBackoff
		}
	}
	return nil, lastErr
}
