// Package usage reconciles provider usage payloads into canonical meters.
//
// DESIGN: Providers report usage under many shapes. Each meter has an
// ordered list of known key paths; the first finite number wins. Missing
// meters are derived, never trusted blindly:
//
//	total-only      → attributed by Options.TotalOnlyBias
//	total missing   → input + output
//	one part missing → total - other, floored at 0
//	total < parts   → total widened to input + output (saturating)
//
// Every function is total over its input. Unparseable payloads are first
// repaired (truncated JSON is common at stream end) and otherwise produce
// all-zero usage; the billing ledger cannot take a mid-pipeline failure after
// the provider has already charged.
package usage

import (
	"encoding/json"
	"math"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// Bias decides where a total-only usage report is attributed.
type Bias string

const (
	BiasInput  Bias = "input"
	BiasOutput Bias = "output"
	BiasSplit  Bias = "split" // input receives the odd token
)

// Options configures normalization.
type Options struct {
	TotalOnlyBias Bias
}

// ParseBias maps a config value to a Bias, defaulting to input.
func ParseBias(s string) Bias {
	switch Bias(s) {
	case BiasOutput, BiasSplit:
		return Bias(s)
	default:
		return BiasInput
	}
}

// Normalize canonicalizes a raw usage payload.
func Normalize(payload []byte, opts Options) ir.Usage {
	doc, ok := parse(payload)
	if !ok {
		return ir.Usage{}
	}
	return normalize(doc, opts)
}

// NormalizeValue canonicalizes an already-decoded usage value.
func NormalizeValue(v any, opts Options) ir.Usage {
	if v == nil {
		return ir.Usage{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Debug().Err(err).Msg("usage: value is not JSON-encodable, reporting zero usage")
		return ir.Usage{}
	}
	return Normalize(data, opts)
}

func parse(payload []byte) (gjson.Result, bool) {
	if len(payload) == 0 {
		return gjson.Result{}, false
	}
	if gjson.ValidBytes(payload) {
		return gjson.ParseBytes(payload), true
	}

	repaired, err := jsonrepair.JSONRepair(string(payload))
	if err != nil || !gjson.Valid(repaired) {
		log.Debug().Int("bytes", len(payload)).Msg("usage: unparseable payload, reporting zero usage")
		return gjson.Result{}, false
	}
	log.Debug().Int("bytes", len(payload)).Msg("usage: repaired malformed payload")
	return gjson.Parse(repaired), true
}

func normalize(doc gjson.Result, opts Options) ir.Usage {
	in, hasIn := pick(doc, inputPaths)
	out, hasOut := pick(doc, outputPaths)
	total, hasTotal := pick(doc, totalPaths)

	var u ir.Usage
	switch {
	case hasTotal && !hasIn && !hasOut:
		in, out = attribute(total, opts.TotalOnlyBias)
	case !hasTotal:
		total = addSat(in, out)
	case !hasIn:
		in = floor0(total - out)
	case !hasOut:
		out = floor0(total - in)
	}

	if parts := addSat(in, out); total < parts {
		total = parts
	}
	u.InputTokens, u.OutputTokens, u.TotalTokens = in, out, total

	for key, slot := range u.Optional() {
		if key == ir.MeterRequests {
			continue
		}
		if v, ok := pick(doc, optionalPaths[key]); ok {
			*slot = &v
		}
	}

	if n, ok := pick(doc, requestPaths); ok {
		u.Requests = &n
	} else if total > 0 {
		one := int64(1)
		u.Requests = &one
	}

	return u
}

func attribute(total int64, bias Bias) (in, out int64) {
	switch bias {
	case BiasOutput:
		return 0, total
	case BiasSplit:
		half := total / 2
		return total - half, half
	default:
		return total, 0
	}
}

// pick returns the first path holding a finite number, rounded to the
// nearest non-negative integer.
func pick(doc gjson.Result, paths []string) (int64, bool) {
	for _, p := range paths {
		r := doc.Get(p)
		if r.Type != gjson.Number {
			continue
		}
		f := r.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if f <= 0 {
			return 0, true
		}
		if f >= math.MaxInt64 {
			return math.MaxInt64, true
		}
		return floor0(int64(math.Round(f))), true
	}
	return 0, false
}

// addSat adds two non-negative meters, saturating at math.MaxInt64.
func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func floor0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
