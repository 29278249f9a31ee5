package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/unlabel/internal/domain"
)

// ErrSchemaMismatch reports a response body that is not a decision object at
// all, as opposed to one that merely omits optional fields.
var ErrSchemaMismatch = errors.New("response does not match the decision schema")

const (
	DefaultSummary   = "Analysis complete."
	DefaultVerdict   = domain.VerdictOccasional
	DefaultIntent    = "curiosity"
	maxWhyThisMatter = 3

	defaultWhenItMakesSense = "Consider your individual dietary needs and preferences"
)

// legacyKeys only appear in the image endpoint's response shape.
var legacyKeys = []string{"trade_offs", "insight", "detailed_reasoning"}

type legacyWire struct {
	Insight           *string `json:"insight"`
	DetailedReasoning *string `json:"detailed_reasoning"`
	TradeOffs         *struct {
		Pros []string `json:"pros"`
		Cons []string `json:"cons"`
	} `json:"trade_offs"`
	UncertaintyNote *string `json:"uncertainty_note"`
}

// NormalizeDecision decodes a decision response and fills every absent field
// with its default. It fails only when body is not a JSON object, carries a
// legacy analysis key, or has a verdict that is not a string. Any other field
// of the wrong JSON type falls back to its default.
func NormalizeDecision(body []byte) (*domain.Decision, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	for _, key := range legacyKeys {
		if _, ok := fields[key]; ok {
			return nil, fmt.Errorf("%w: found legacy key %q", ErrSchemaMismatch, key)
		}
	}

	var verdict *string
	if raw, ok := fields["verdict"]; ok {
		if err := json.Unmarshal(raw, &verdict); err != nil {
			return nil, fmt.Errorf("%w: verdict: %v", ErrSchemaMismatch, err)
		}
	}

	d := &domain.Decision{
		QuickInsight:           normalizeInsight(objectField(fields, "quick_insight")),
		Verdict:                domain.Verdict(orDefault(verdict, string(DefaultVerdict))),
		IntentClassified:       orDefault(stringField(fields, "intent_classified"), DefaultIntent),
		KeySignals:             nonNil(listField(fields, "key_signals")),
		IngredientTranslations: normalizeTranslations(fields["ingredient_translations"]),
		UncertaintyFlags:       nonNil(listField(fields, "uncertainty_flags")),
		StructuredAnalysis:     decodeStructured(fields["structured_analysis"]),
	}
	d.Explanation = normalizeExplanation(objectField(fields, "explanation"), d.Verdict, d.KeySignals)

	return d, nil
}

// DecodeLegacyAnalysis decodes the image endpoint's response.
func DecodeLegacyAnalysis(body []byte) (*domain.LegacyAnalysis, error) {
	if _, err := decodeObject(body); err != nil {
		return nil, err
	}

	var wire legacyWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	a := &domain.LegacyAnalysis{
		Insight:           orDefault(wire.Insight, DefaultSummary),
		DetailedReasoning: orDefault(wire.DetailedReasoning, ""),
		UncertaintyNote:   orDefault(wire.UncertaintyNote, ""),
		TradeOffs:         domain.TradeOffs{Pros: []string{}, Cons: []string{}},
	}
	if wire.TradeOffs != nil {
		a.TradeOffs.Pros = nonNil(wire.TradeOffs.Pros)
		a.TradeOffs.Cons = nonNil(wire.TradeOffs.Cons)
	}
	return a, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrSchemaMismatch)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return fields, nil
}

func normalizeInsight(fields map[string]json.RawMessage) domain.QuickInsight {
	if fields == nil {
		return domain.QuickInsight{Summary: DefaultSummary}
	}
	return domain.QuickInsight{
		Summary:           orDefault(stringField(fields, "summary"), DefaultSummary),
		UncertaintyReason: orDefault(stringField(fields, "uncertainty_reason"), ""),
	}
}

func normalizeExplanation(fields map[string]json.RawMessage, verdict domain.Verdict, signals []string) domain.Explanation {
	e := domain.Explanation{WhyThisMatters: []string{}}
	if fields != nil {
		e.Verdict = orDefault(stringField(fields, "verdict"), "")
		e.WhyThisMatters = nonNil(listField(fields, "why_this_matters"))
		e.WhenItMakesSense = orDefault(stringField(fields, "when_it_makes_sense"), "")
		e.WhatToKnow = orDefault(stringField(fields, "what_to_know"), "")
	} else {
		e.WhyThisMatters = append(e.WhyThisMatters, signals...)
	}

	if e.Verdict == "" {
		e.Verdict = verdictSentence(verdict)
	}
	if len(e.WhyThisMatters) > maxWhyThisMatter {
		e.WhyThisMatters = e.WhyThisMatters[:maxWhyThisMatter]
	}
	if e.WhenItMakesSense == "" {
		e.WhenItMakesSense = defaultWhenItMakesSense
	}
	if e.WhatToKnow == "" {
		e.WhatToKnow = whatToKnow(verdict)
	}
	return e
}

func verdictSentence(v domain.Verdict) string {
	switch v {
	case domain.VerdictDaily:
		return "This fits comfortably into everyday eating."
	case domain.VerdictLimit:
		return "This is best kept to limited, infrequent use."
	case domain.VerdictOccasional:
		return "This works as an occasional choice."
	default:
		return fmt.Sprintf("Verdict: %s.", v)
	}
}

func whatToKnow(v domain.Verdict) string {
	switch v {
	case domain.VerdictDaily:
		return "The ingredient profile shows no strong signals that call for limiting it."
	case domain.VerdictLimit:
		return "Several ingredient signals suggest keeping portions and frequency low."
	default:
		return "The ingredient profile is mixed, so context and portion size matter."
	}
}

func normalizeTranslations(raw json.RawMessage) []domain.IngredientTranslation {
	var items []json.RawMessage
	if !decodeOptional("ingredient_translations", raw, &items) {
		return []domain.IngredientTranslation{}
	}

	out := make([]domain.IngredientTranslation, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if !decodeOptional("ingredient_translations[]", item, &fields) || fields == nil {
			continue
		}
		term := strings.TrimSpace(orDefault(stringField(fields, "term"), ""))
		if term == "" {
			continue
		}
		out = append(out, domain.IngredientTranslation{
			Term:             term,
			PlainExplanation: orDefault(stringField(fields, "simple_explanation"), ""),
			Category:         orDefault(stringField(fields, "category"), "other"),
		})
	}
	return out
}

func stringField(fields map[string]json.RawMessage, key string) *string {
	var s *string
	if !decodeOptional(key, fields[key], &s) {
		return nil
	}
	return s
}

func listField(fields map[string]json.RawMessage, key string) []string {
	var list []string
	if !decodeOptional(key, fields[key], &list) {
		return nil
	}
	return list
}

func objectField(fields map[string]json.RawMessage, key string) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if !decodeOptional(key, fields[key], &obj) {
		return nil
	}
	return obj
}

// decodeOptional reports false when raw is absent or of the wrong JSON type;
// dst must not be used in that case.
func decodeOptional(key string, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Debug("ignoring mistyped decision field", "field", key, "error", err)
		return false
	}
	return true
}

// decodeStructured is best effort: the block is supplementary, so a shape it
// cannot decode is dropped rather than failing the whole decision.
func decodeStructured(raw json.RawMessage) *domain.StructuredAnalysis {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var sa domain.StructuredAnalysis
	if err := json.Unmarshal(raw, &sa); err != nil {
		slog.Debug("dropping undecodable structured analysis", "error", err)
		return nil
	}
	return &sa
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
