package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/formwork/pkg/cancel"
	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/normalize"
	"github.com/pario-ai/formwork/pkg/provider"
)

// Execute runs req to completion and returns a validated result, a fallback
// result, or a *models.Error.
func (e *Engine) Execute(ctx context.Context, req Request) (*models.Result, error) {
	start := time.Now()
	p, perr := e.prepare(req, "execute")
	if perr != nil {
		e.metrics.RecordError(ctx, p.operation, string(perr.Kind))
		e.metrics.RecordRequest(ctx, p.operation, "error", time.Since(start))
		return nil, perr
	}

	if result, ok := e.cached(ctx, p); ok {
		e.finish(ctx, p, start, result, nil, false)
		return result, nil
	}

	exec := e.provider.Executor()
	var lastErr *models.Error
	spent, spentEstimated := 0, false
	for attempt := 1; attempt <= p.attempts; attempt++ {
		e.metrics.RecordAttempt(ctx, p.operation, e.provider.Name())
		out := e.invoke(ctx, p, func(actx context.Context) (*provider.Response, error) {
			return exec.Execute(actx, p.call)
		}, nil)

		if out.err == nil {
			tokens, estimated := p.tokens(out.resp)
			data, err := normalize.ParseAndValidate(out.resp.Data, p.req.Shape, p.class.IsPrimitive, e.provider.Name())
			if err == nil {
				result := &models.Result{Data: data, Tokens: tokens, RequestID: p.id}
				e.store(p, result)
				e.finish(ctx, p, start, result, nil, estimated)
				return result, nil
			}
			spent += tokens
			spentEstimated = spentEstimated || estimated
			out.err = models.Normalize(err)
		}

		lastErr = out.err
		e.metrics.RecordError(ctx, p.operation, string(lastErr.Kind))
		e.logAttempt(p, attempt, lastErr)
		if lastErr.Kind == models.KindConfiguration || out.callerCanceled {
			break
		}
	}

	result, ferr := e.exhausted(p, lastErr, spent)
	if ferr != nil {
		e.finish(ctx, p, start, nil, ferr, false)
		return nil, ferr
	}
	e.finish(ctx, p, start, result, nil, spentEstimated)
	return result, nil
}

// attemptOutcome is the settled state of one provider invocation.
type attemptOutcome struct {
	resp           *provider.Response
	err            *models.Error
	callerCanceled bool
}

type invocation struct {
	resp *provider.Response
	err  error
}

// invoke runs one attempt under its own deadline combined with ctx. The
// adapter runs in its own goroutine so an adapter that ignores cancellation
// still cannot hold the engine past the deadline. settle, when non-nil, is
// called as soon as the attempt is decided, before the outcome is
// classified.
func (e *Engine) invoke(ctx context.Context, p *prepared, run func(context.Context) (*provider.Response, error), settle func()) attemptOutcome {
	caller := cancel.FromContext(ctx)
	defer caller.Release()
	deadline := cancel.Deadline(p.timeout)
	defer deadline.Release()
	tok := cancel.AnyOf(caller, deadline)
	defer tok.Release()
	// Leaving invoke always tells the adapter to stop.
	defer tok.Cancel()

	name := e.provider.Name()
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("%s panicked: %v", name, r)}
			}
		}()
		resp, err := run(tok.Context())
		done <- invocation{resp: resp, err: err}
	}()

	var res invocation
	settled := false
	select {
	case res = <-done:
		settled = true
	case <-tok.Done():
	}
	if settle != nil {
		settle()
	}

	if settled && res.err == nil {
		if res.resp == nil {
			return attemptOutcome{err: models.NewError(models.KindProvider, name+" returned no data", nil)}
		}
		return attemptOutcome{resp: res.resp}
	}

	switch {
	case deadline.Canceled():
		return attemptOutcome{err: models.NewError(models.KindTimeout,
			fmt.Sprintf("%s did not respond within %s", name, p.timeout), cancel.ErrDeadline)}
	case caller.Canceled():
		return attemptOutcome{err: canceledError(ctx), callerCanceled: true}
	}
	return attemptOutcome{err: providerError(name, res.err)}
}

func canceledError(ctx context.Context) *models.Error {
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		return models.NewError(models.KindTimeout, "request deadline exceeded", cause)
	}
	if cause == nil {
		cause = cancel.ErrCanceled
	}
	return models.NewError(models.KindProvider, "request canceled", cause)
}

func providerError(name string, err error) *models.Error {
	if e, ok := models.AsError(err); ok {
		return e
	}
	return models.NewError(models.Classify(err), name+" call failed", err)
}
