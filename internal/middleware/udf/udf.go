// Package udf implements the UDF middleware provider, per spec §4.4:
// evaluates a scripted transform in a sandboxed goja VM under two limits: an
// operation budget (default 1,000,000) and a wall-clock timeout (default 5s).
// The operation budget is not an instruction count: it is enforced as
// opBudget/1000 milliseconds of elapsed time, so with both defaults the
// budget interrupt fires first, after about one second. Exceeding either
// fails the event with UdfLimitExceeded.
package udf

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dop251/goja"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/middleware"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// DefaultOpBudget is the default operation budget, enforced as
// DefaultOpBudget/1000 milliseconds of elapsed time (see Apply).
const DefaultOpBudget = 1_000_000

// DefaultTimeout is the default wall-clock budget spec §4.4 names.
const DefaultTimeout = 5 * time.Second

// verdict is the shape a UDF script returns: {"action": "keep"|"drop"|"split",
// "events": [...]}. Scripts that return a bare object are treated as Keep
// with that object as the new payload, matching the original's ergonomic
// single-object convention (spec is silent; see DESIGN.md).
type verdict struct {
	Action string           `json:"action"`
	Events []json.RawMessage `json:"events"`
}

// Middleware evaluates a JS function named "transform(doc)" loaded from
// source against each event's decoded document.
type Middleware struct {
	name      string
	source    string
	opBudget  uint64
	timeout   time.Duration
}

// New builds a UDF middleware from script source. opBudget and timeout fall
// back to the spec defaults when zero.
func New(name, source string, opBudget uint64, timeout time.Duration) *Middleware {
	if opBudget == 0 {
		opBudget = DefaultOpBudget
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Middleware{name: name, source: source, opBudget: opBudget, timeout: timeout}
}

var _ middleware.Middleware = (*Middleware)(nil)

func (m *Middleware) Name() string { return m.name }

// Apply runs the script's transform(doc) function against event.raw_bytes,
// parsed as JSON, in a fresh VM per call so state never leaks between events.
func (m *Middleware) Apply(ctx context.Context, event core.SinkEvent) (middleware.Result, error) {
	vm := goja.New()

	done := make(chan struct{})
	var ops uint64
	vm.SetMaxCallStackSize(256)

	// goja has no native op-counter; a goroutine ticking once per
	// millisecond interrupts the VM after opBudget/1000 ticks, so the budget
	// bounds elapsed time rather than executed operations.
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ops++
				if ops > m.opBudget/1000 {
					vm.Interrupt(svcerr.New(svcerr.CodeUdfLimitExceeded, "udf operation budget exceeded"))
					return
				}
			}
		}
	}()

	timer := time.AfterFunc(m.timeout, func() {
		vm.Interrupt(svcerr.New(svcerr.CodeUdfLimitExceeded, "udf wall-clock timeout exceeded"))
	})
	defer timer.Stop()

	if _, err := vm.RunString(m.source); err != nil {
		close(done)
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeUdfLimitExceeded, "loading udf script", err)
	}

	transform, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		close(done)
		return middleware.Result{}, svcerr.New(svcerr.CodeUdfLimitExceeded, "udf script does not define transform(doc)")
	}

	var doc any
	if err := json.Unmarshal(event.RawBytes, &doc); err != nil {
		close(done)
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeSchemaValidationError, "decoding event for udf", err)
	}

	result, err := transform(goja.Undefined(), vm.ToValue(doc))
	close(done)
	if err != nil {
		if ie, ok := err.(*goja.InterruptedError); ok {
			if svcErr, ok := ie.Value().(error); ok {
				return middleware.Result{}, svcErr
			}
		}
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeUdfLimitExceeded, "udf transform error", err)
	}

	return m.toResult(event, result)
}

func (m *Middleware) toResult(event core.SinkEvent, result goja.Value) (middleware.Result, error) {
	exported := result.Export()
	if exported == nil {
		return middleware.DropResult(), nil
	}

	raw, err := json.Marshal(exported)
	if err != nil {
		return middleware.Result{}, svcerr.Wrap(svcerr.CodeUdfLimitExceeded, "marshaling udf result", err)
	}

	var v verdict
	if err := json.Unmarshal(raw, &v); err == nil && v.Action != "" {
		switch v.Action {
		case "drop":
			return middleware.DropResult(), nil
		case "split":
			events := make([]core.SinkEvent, 0, len(v.Events))
			for _, e := range v.Events {
				out := event
				out.RawBytes = e
				events = append(events, out)
			}
			return middleware.SplitResult(events...), nil
		case "keep":
			out := event
			if len(v.Events) == 1 {
				out.RawBytes = v.Events[0]
			}
			return middleware.KeepResult(out), nil
		}
	}

	out := event
	out.RawBytes = raw
	return middleware.KeepResult(out), nil
}
