package subprotocol

import (
	"context"
	"errors"
	"time"

	"xrpchan/account"
	"xrpchan/claimengine"
	ilppkg "xrpchan/ilp"
)

// DataHandler is the external ILP data handler the connector core forwards
// admitted PREPAREs to (spec.md §6 "external collaborator"). It returns
// exactly one of fulfill or reject.
type DataHandler func(ctx context.Context, p *ilppkg.Prepare) (*ilppkg.Fulfill, *ilppkg.Reject, error)

// MoneyHandler is invoked once a FULFILL for a non-zero amount is observed,
// so the orchestrator can sign and deliver a settlement claim (spec.md §4.6).
type MoneyHandler func(ctx context.Context, a *account.Account, amount uint64)

// ILPEngine implements spec.md §4.4 item 5: the ilp sub-protocol.
type ILPEngine struct {
	Codec     ilppkg.Codec
	Admission claimengine.AdmissionPolicy
	Data      DataHandler
	Money     MoneyHandler
}

// HandlePacket decodes raw as a PREPARE, admits it, races the external data
// handler against a deadline, and returns the wire-encoded reply. Allowed
// only in READY.
func (e ILPEngine) HandlePacket(ctx context.Context, a *account.Account, raw []byte) ([]byte, error) {
	if a.State() != account.StateReady {
		reject := ilppkg.NewUnreachableError("account is not ready").ToReject()
		return e.Codec.EncodeReject(reject)
	}

	prepare, err := e.Codec.DecodePrepare(raw)
	if err != nil {
		return nil, err
	}

	if prepare.Destination == ilppkg.PeerConfigDestination {
		resp := ilppkg.BuildConfigResponse(a.Deps().ServerAddress + "." + a.ID)
		fulfill, err := ilppkg.EncodeConfigResponseFulfill(resp)
		if err != nil {
			return nil, err
		}
		return e.Codec.EncodeFulfill(fulfill)
	}

	if err := e.Admission.CheckPrepare(a, prepare.Amount); err != nil {
		var rejectErr *ilppkg.RejectError
		if errors.As(err, &rejectErr) {
			return e.Codec.EncodeReject(rejectErr.ToReject())
		}
		return nil, err
	}

	deadline := ilppkg.DefaultNonPrepareDeadline
	if !prepare.ExpiresAt.IsZero() {
		if d := time.Until(prepare.ExpiresAt); d > 0 {
			deadline = d
		} else {
			deadline = 0
		}
	}

	fulfill, reject, err := e.raceDataHandler(ctx, prepare, deadline)
	if err != nil {
		claimengine.RollbackReject(a, prepare.Amount)
		return nil, err
	}
	if reject != nil {
		claimengine.RollbackReject(a, prepare.Amount)
		if reject.Code == ilppkg.CodeInsufficientLiquidity && e.Money != nil {
			// The upstream is itself short on liquidity; opportunistically
			// settle whatever is already owed before giving up, in case
			// channel capacity opened up since the last attempt. Passing a
			// zero prepare amount folds in nothing new and just retries the
			// existing owed balance.
			e.Money(ctx, a, 0)
		}
		return e.Codec.EncodeReject(reject)
	}

	if !prepare.Amount.IsZero() && e.Money != nil && prepare.Amount.IsUint64() {
		e.Money(ctx, a, prepare.Amount.Uint64())
	}
	return e.Codec.EncodeFulfill(fulfill)
}

func (e ILPEngine) raceDataHandler(ctx context.Context, p *ilppkg.Prepare, deadline time.Duration) (*ilppkg.Fulfill, *ilppkg.Reject, error) {
	if deadline <= 0 {
		return nil, ilppkg.NewTimeoutError().ToReject(), nil
	}

	raceCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		fulfill *ilppkg.Fulfill
		reject  *ilppkg.Reject
		err     error
	}
	done := make(chan result, 1)
	go func() {
		f, r, err := e.Data(raceCtx, p)
		done <- result{f, r, err}
	}()

	select {
	case res := <-done:
		return res.fulfill, res.reject, res.err
	case <-raceCtx.Done():
		return nil, ilppkg.NewTimeoutError().ToReject(), nil
	}
}
