// Package pipeline runs one chat request through the normalization stages.
//
// DESIGN: The pipeline owns ordering, the stages own semantics:
//
//	capability_filter → request_quirks → upstream → response_quirks → usage
//
// Every stage is total: malformed upstream data degrades to empty values,
// and only client request errors and upstream transport errors are returned.
// When a call asks for a trace, each stage records a before/after diff into
// a debugtrace.Recorder and the entries are appended to the trace store under
// the request id.
//
// FILES:
//   - pipeline.go: Pipeline, Call, Prepare, Complete
//   - stream.go:   Stream and the per-choice delta loop
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/capability"
	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/debugtrace"
	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/monitoring"
	"github.com/compresr/dialect-gateway/internal/quirks"
	"github.com/compresr/dialect-gateway/internal/store"
	"github.com/compresr/dialect-gateway/internal/upstream"
	"github.com/compresr/dialect-gateway/internal/usage"
)

// Trace stage names.
const (
	StageCapabilityFilter = "capability_filter"
	StageRequestQuirks    = "request_quirks"
	StageResponseQuirks   = "response_quirks"
	StageUsage            = "usage"
)

// ErrInvalidRequest wraps client request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Deps are the collaborators of a Pipeline. Quirks defaults to
// quirks.Default(); Traces and Metrics may be nil.
type Deps struct {
	Config   *config.Config
	Quirks   *quirks.Registry
	Executor upstream.Executor
	Traces   store.TraceStore
	Metrics  *monitoring.Metrics
}

// Pipeline runs requests through filter, quirks, upstream and usage.
type Pipeline struct {
	cfg      *config.Config
	quirks   *quirks.Registry
	executor upstream.Executor
	traces   store.TraceStore
	metrics  *monitoring.Metrics
	bias     usage.Bias

	now   func() time.Time
	newID func() string
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	reg := deps.Quirks
	if reg == nil {
		reg = quirks.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Pipeline{
		cfg:      cfg,
		quirks:   reg,
		executor: deps.Executor,
		traces:   deps.Traces,
		metrics:  deps.Metrics,
		bias:     usage.ParseBias(cfg.Usage.TotalOnlyBias),
		now:      time.Now,
		newID:    func() string { return "gen-" + uuid.New().String() },
	}
}

// Call is one client request routed to a provider.
type Call struct {
	RequestID  string
	ProviderID string
	Model      string // upstream model id, provider prefix removed
	Request    *ir.Request
	// TraceLevel enables the debug trace side channel when set.
	TraceLevel debugtrace.Level
}

// Prepared is a request ready for the upstream.
type Prepared struct {
	Request      *ir.Request
	FilterResult capability.Result
	Quirks       []string // request quirks that ran
}

// =============================================================================
// PREPARE
// =============================================================================

// Prepare validates the call's request, narrows it to the provider's
// capability allow-list and applies request quirks. The caller's request is
// never modified.
func (p *Pipeline) Prepare(ctx context.Context, call *Call, rec *debugtrace.Recorder) (*Prepared, error) {
	if call == nil || call.Request == nil {
		return nil, fmt.Errorf("%w: empty call", ErrInvalidRequest)
	}
	req := call.Request.Clone()
	if call.Model != "" {
		req.Model = call.Model
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	params := p.cfg.CapabilityFor(call.ProviderID, req.Model)
	filtered, result := capability.Filter(req, params)
	p.metrics.RecordFilter(string(result))
	rec.Stage(StageCapabilityFilter, req, filtered)

	var before *ir.Request
	if rec.Enabled() {
		before = filtered.Clone()
	}
	applied := p.quirks.ApplyRequestQuirks(&quirks.RequestContext{
		ProviderID: call.ProviderID,
		Model:      req.Model,
		Request:    filtered,
	})
	p.metrics.RecordQuirks(monitoring.PhaseRequest, applied...)
	if before != nil {
		rec.Stage(StageRequestQuirks, before, filtered)
	}

	monitoring.FromContext(ctx).Debug().
		Str("provider", call.ProviderID).
		Str("model", req.Model).
		Str("filter", string(result)).
		Strs("quirks", applied).
		Msg("pipeline: request prepared")

	return &Prepared{Request: filtered, FilterResult: result, Quirks: applied}, nil
}

// =============================================================================
// COMPLETE
// =============================================================================

// Result is a completed non-streaming call.
type Result struct {
	Response *ir.Response
	Prepared *Prepared
	Quirks   []string // response quirks that contributed, deduplicated
}

// Complete runs a non-streaming call end to end.
func (p *Pipeline) Complete(ctx context.Context, call *Call) (*Result, error) {
	rec := p.recorder(call)
	defer p.saveTrace(call, rec)

	prep, err := p.Prepare(ctx, call, rec)
	if err != nil {
		return nil, err
	}

	start := p.now()
	completion, err := p.executor.Complete(ctx, call.ProviderID, prep.Request)
	p.metrics.RecordUpstream(call.ProviderID, outcome(err), p.now().Sub(start))
	if err != nil {
		rec.Note(StageResponseQuirks, debugtrace.RootPath, "upstream error: "+err.Error())
		return nil, err
	}

	resp := &ir.Response{
		ID:                p.newID(),
		NativeID:          completion.NativeID,
		Created:           completion.Created,
		Model:             completion.Model,
		Provider:          call.ProviderID,
		ServiceTier:       completion.ServiceTier,
		SystemFingerprint: completion.SystemFingerprint,
	}
	if resp.Created == 0 {
		resp.Created = p.now().Unix()
	}
	if resp.Model == "" {
		resp.Model = prep.Request.Model
	}

	var applied []string
	rawView, foldedView := foldView{}, foldView{}
	for _, ch := range completion.Choices {
		fold := p.quirks.ApplyResponseQuirks(&quirks.ResponseContext{
			ProviderID:  call.ProviderID,
			Model:       prep.Request.Model,
			ChoiceIndex: ch.Index,
			RawContent:  ch.Content,
			RawMessage:  ch.Message,
		})
		applied = appendUnique(applied, fold.Applied...)
		p.metrics.RecordQuirks(monitoring.PhaseResponse, fold.Applied...)

		// structured upstream tool calls win over calls recovered from text
		toolCalls, finish := ch.ToolCalls, ch.FinishReason
		if len(toolCalls) == 0 && len(fold.ToolCalls) > 0 {
			toolCalls = fold.ToolCalls
			if finish == "" || finish == ir.FinishStop {
				finish = ir.FinishToolCalls
			}
		}

		resp.Choices = append(resp.Choices, ir.Choice{
			Index: ch.Index,
			Message: ir.AssistantMessage{
				Role:      ir.RoleAssistant,
				Content:   fold.Main,
				Reasoning: fold.Reasoning,
				ToolCalls: toolCalls,
				Refusal:   ch.Refusal,
			},
			FinishReason: finish,
			StopSequence: ch.StopSequence,
		})
		if rec.Enabled() {
			key := strconv.Itoa(ch.Index)
			rawView[key] = choiceView{Content: ch.Content}
			foldedView[key] = choiceView{Content: fold.Main, Reasoning: fold.Reasoning}
		}
	}
	rec.Stage(StageResponseQuirks, rawView, foldedView)

	u := p.normalizeUsage(call, completion.Usage, rec)
	resp.Usage = &u

	return &Result{Response: resp, Prepared: prep, Quirks: applied}, nil
}

// normalizeUsage canonicalizes a raw usage payload and records it.
func (p *Pipeline) normalizeUsage(call *Call, raw []byte, rec *debugtrace.Recorder) ir.Usage {
	if len(raw) == 0 {
		rec.Note(StageUsage, debugtrace.RootPath, "no usage reported")
	}
	u := usage.Normalize(raw, usage.Options{TotalOnlyBias: p.bias})
	if len(raw) > 0 {
		rec.Stage(StageUsage, raw, u)
	}
	p.metrics.RecordUsage(call.ProviderID, u.Meters())
	return u
}

// =============================================================================
// TRACING
// =============================================================================

// choiceView is what the response_quirks stage diffs per choice.
type choiceView struct {
	Content   string   `json:"content"`
	Reasoning []string `json:"reasoning,omitempty"`
}

type foldView map[string]choiceView

func (p *Pipeline) recorder(call *Call) *debugtrace.Recorder {
	if call == nil || call.TraceLevel == "" || p.traces == nil {
		return nil
	}
	return debugtrace.NewRecorder(call.TraceLevel, func(e debugtrace.Entry) {
		p.metrics.RecordTraceEntry(e.Stage, string(e.Action))
	})
}

func (p *Pipeline) saveTrace(call *Call, rec *debugtrace.Recorder) {
	if !rec.Enabled() || call.RequestID == "" {
		return
	}
	meta := store.Meta{Provider: call.ProviderID, Model: call.Model, Level: string(rec.Level())}
	if err := p.traces.Append(call.RequestID, meta, rec.Entries()...); err != nil {
		log.Warn().Err(err).Str("request_id", call.RequestID).Msg("pipeline: failed to store trace")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func outcome(err error) monitoring.Outcome {
	var se *upstream.StatusError
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return monitoring.OutcomeCancelled
	case errors.As(err, &se):
		return monitoring.OutcomeStatus
	default:
		return monitoring.OutcomeError
	}
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		seen := false
		for _, d := range dst {
			if d == id {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, id)
		}
	}
	return dst
}
