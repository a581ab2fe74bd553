package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/compresr/dialect-gateway/internal/debugtrace"
	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/monitoring"
	"github.com/compresr/dialect-gateway/internal/quirks"
	"github.com/compresr/dialect-gateway/internal/stream"
)

// Event is one client-facing stream event. Usage is set only on the final
// usage event. NativeID is the upstream's id, empty until a chunk carries one.
type Event struct {
	ID       string
	NativeID string
	Created  int64
	Model    string
	Provider string
	Choices  []ChoiceDelta
	Usage    *ir.Usage
}

// ChoiceDelta is the transformed delta of one choice.
type ChoiceDelta struct {
	Index        int
	Role         ir.Role
	Delta        stream.Delta
	ToolCalls    json.RawMessage
	FinishReason string
}

// StreamResult summarizes a finished stream.
type StreamResult struct {
	NativeID string
	Usage    ir.Usage
	Prepared *Prepared
	Quirks   []string // stream quirks that ran
}

// choiceState is the per-choice stream state; it lives for one stream only.
type choiceState struct {
	t        stream.Transformer
	finished bool
	// upstream sent structured tool call deltas for this choice
	sawToolCalls bool

	// accumulated text, kept only while tracing
	rawContent, rawReasoning strings.Builder
	outContent, outReasoning strings.Builder
}

// Stream runs a streaming call. Each choice gets its own transformer chain;
// a choice is flushed when its finish_reason arrives or at end of stream.
// emit is called synchronously for every event; an emit error stops the
// stream. Errors before the first emit leave nothing written to the client.
func (p *Pipeline) Stream(ctx context.Context, call *Call, emit func(*Event) error) (*StreamResult, error) {
	rec := p.recorder(call)
	defer p.saveTrace(call, rec)

	prep, err := p.Prepare(ctx, call, rec)
	if err != nil {
		return nil, err
	}

	start := p.now()
	s, err := p.executor.Stream(ctx, call.ProviderID, prep.Request)
	if err != nil {
		p.metrics.RecordUpstream(call.ProviderID, outcome(err), p.now().Sub(start))
		rec.Note(StageResponseQuirks, debugtrace.RootPath, "upstream error: "+err.Error())
		return nil, err
	}
	defer s.Close()

	rctx := &quirks.RequestContext{ProviderID: call.ProviderID, Model: prep.Request.Model, Request: prep.Request}
	streamQuirks := p.streamQuirkIDs(call.ProviderID)
	p.metrics.RecordQuirks(monitoring.PhaseStream, streamQuirks...)

	base := Event{ID: p.newID(), Created: p.now().Unix(), Model: prep.Request.Model, Provider: call.ProviderID}
	states := map[int]*choiceState{}
	state := func(index int) *choiceState {
		st, ok := states[index]
		if !ok {
			st = &choiceState{t: p.quirks.StreamTransformer(rctx)}
			states[index] = st
		}
		return st
	}

	var rawUsage []byte
	var readErr error
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if chunk.Usage != nil {
			rawUsage = chunk.Usage
		}
		if chunk.Model != "" {
			base.Model = chunk.Model
		}
		if base.NativeID == "" {
			base.NativeID = chunk.NativeID
		}

		ev := base
		ev.Choices = nil
		for _, cc := range chunk.Choices {
			st := state(cc.Index)
			in := stream.Delta{Content: cc.Content, Reasoning: cc.Reasoning}
			out := st.t.Transform(in)
			if cc.FinishReason != "" && !st.finished {
				out = out.Add(st.t.Flush())
				st.finished = true
			}
			if rec.Enabled() {
				st.record(in, out)
			}
			if len(cc.ToolCalls) > 0 {
				st.sawToolCalls = true
			}
			if out.IsEmpty() && cc.Role == "" && len(cc.ToolCalls) == 0 && cc.FinishReason == "" {
				continue
			}
			cd := ChoiceDelta{
				Index:        cc.Index,
				Role:         ir.Role(cc.Role),
				Delta:        out,
				ToolCalls:    cc.ToolCalls,
				FinishReason: cc.FinishReason,
			}
			st.attachToolCalls(&cd)
			ev.Choices = append(ev.Choices, cd)
		}
		if len(ev.Choices) == 0 {
			continue
		}
		if err := emit(&ev); err != nil {
			p.metrics.RecordUpstream(call.ProviderID, monitoring.OutcomeCancelled, p.now().Sub(start))
			return nil, fmt.Errorf("emit: %w", err)
		}
	}
	p.metrics.RecordUpstream(call.ProviderID, outcome(readErr), p.now().Sub(start))

	// release whatever the transformers still hold
	final := base
	for _, index := range sortedIndexes(states) {
		st := states[index]
		if st.finished {
			continue
		}
		out := st.t.Flush()
		st.finished = true
		if rec.Enabled() {
			st.record(stream.Delta{}, out)
		}
		cd := ChoiceDelta{Index: index, Delta: out}
		st.attachToolCalls(&cd)
		if !cd.Delta.IsEmpty() || len(cd.ToolCalls) > 0 {
			final.Choices = append(final.Choices, cd)
		}
	}
	if len(final.Choices) > 0 {
		if err := emit(&final); err != nil {
			return nil, fmt.Errorf("emit: %w", err)
		}
	}

	if rec.Enabled() {
		rawView, outView := foldView{}, foldView{}
		for index, st := range states {
			key := strconv.Itoa(index)
			rawView[key] = choiceView{Content: st.rawContent.String(), Reasoning: nonEmpty(st.rawReasoning.String())}
			outView[key] = choiceView{Content: st.outContent.String(), Reasoning: nonEmpty(st.outReasoning.String())}
		}
		rec.Stage(StageResponseQuirks, rawView, outView)
	}

	u := p.normalizeUsage(call, rawUsage, rec)
	if readErr != nil {
		return nil, readErr
	}
	if rawUsage != nil {
		usageEvent := base
		usageEvent.Choices = nil
		usageEvent.Usage = &u
		if err := emit(&usageEvent); err != nil {
			return nil, fmt.Errorf("emit: %w", err)
		}
	}

	return &StreamResult{NativeID: base.NativeID, Usage: u, Prepared: prep, Quirks: streamQuirks}, nil
}

// attachToolCalls moves tool calls a transformer recovered from text into
// the choice's tool call delta. Structured upstream tool calls win; recovered
// calls turn a stop into a tool_calls finish.
func (st *choiceState) attachToolCalls(cd *ChoiceDelta) {
	calls := cd.Delta.ToolCalls
	cd.Delta.ToolCalls = nil
	if len(calls) == 0 || st.sawToolCalls || len(cd.ToolCalls) > 0 {
		return
	}
	cd.ToolCalls = toolCallDeltas(calls)
	st.sawToolCalls = true
	if cd.FinishReason == "" || cd.FinishReason == ir.FinishStop {
		cd.FinishReason = ir.FinishToolCalls
	}
}

// wireToolCallDelta is the OpenAI tool call delta shape.
type wireToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toolCallDeltas(calls []ir.ToolCall) json.RawMessage {
	out := make([]wireToolCallDelta, len(calls))
	for i, c := range calls {
		out[i].Index = i
		out[i].ID = c.ID
		out[i].Type = "function"
		out[i].Function.Name = c.Name
		out[i].Function.Arguments = c.Arguments
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return data
}

func (st *choiceState) record(in, out stream.Delta) {
	st.rawContent.WriteString(in.Content)
	st.rawReasoning.WriteString(in.Reasoning)
	st.outContent.WriteString(out.Content)
	st.outReasoning.WriteString(out.Reasoning)
}

func (p *Pipeline) streamQuirkIDs(providerID string) []string {
	var ids []string
	for _, q := range p.quirks.Matching(providerID) {
		if _, ok := q.(quirks.StreamQuirk); ok {
			ids = append(ids, q.ID())
		}
	}
	return ids
}

func sortedIndexes(states map[int]*choiceState) []int {
	out := make([]int, 0, len(states))
	for i := range states {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
