package domain

import "time"

type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

type MessageKind string

const (
	KindText           MessageKind = "text"
	KindImage          MessageKind = "image"
	KindLegacyAnalysis MessageKind = "analysis"
	KindDecision       MessageKind = "decision"
)

// Message is one entry of a conversation transcript. Exactly one payload
// field is meaningful for a given Kind.
type Message struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	Role      Role        `json:"role"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`

	Text         string          `json:"text,omitempty"`
	ImagePreview string          `json:"image_preview,omitempty"`
	Attachment   string          `json:"attachment,omitempty"`
	Analysis     *LegacyAnalysis `json:"analysis,omitempty"`
	Decision     *Decision       `json:"decision,omitempty"`
}

// Verdict is an open string: the three known values are constants but the
// service may introduce others.
type Verdict string

const (
	VerdictDaily      Verdict = "Daily"
	VerdictOccasional Verdict = "Occasional"
	VerdictLimit      Verdict = "Limit Frequent Use"
)

type Tone int

const (
	ToneNeutral Tone = iota
	TonePositive
	ToneCaution
)

// Tone maps a verdict to its visual treatment. Unknown verdicts are neutral.
func (v Verdict) Tone() Tone {
	switch v {
	case VerdictDaily:
		return TonePositive
	case VerdictLimit:
		return ToneCaution
	default:
		return ToneNeutral
	}
}

// Label is the short badge text for a verdict.
func (v Verdict) Label() string {
	if v == VerdictLimit {
		return "Limit Use"
	}
	return string(v)
}

type QuickInsight struct {
	Summary           string `json:"summary"`
	UncertaintyReason string `json:"uncertainty_reason,omitempty"`
}

type Explanation struct {
	Verdict          string   `json:"verdict"`
	WhyThisMatters   []string `json:"why_this_matters"`
	WhenItMakesSense string   `json:"when_it_makes_sense"`
	WhatToKnow       string   `json:"what_to_know"`
}

type IngredientTranslation struct {
	Term             string `json:"term"`
	PlainExplanation string `json:"simple_explanation"`
	Category         string `json:"category"`
}

// Decision is the render-ready, fully populated decision record.
type Decision struct {
	QuickInsight           QuickInsight            `json:"quick_insight"`
	Verdict                Verdict                 `json:"verdict"`
	Explanation            Explanation             `json:"explanation"`
	IntentClassified       string                  `json:"intent_classified"`
	KeySignals             []string                `json:"key_signals"`
	IngredientTranslations []IngredientTranslation `json:"ingredient_translations"`
	UncertaintyFlags       []string                `json:"uncertainty_flags"`
	StructuredAnalysis     *StructuredAnalysis     `json:"structured_analysis,omitempty"`
}

// StructuredAnalysis is supplementary technical detail. Any part may be nil.
type StructuredAnalysis struct {
	IngredientSummary *IngredientSummary `json:"ingredient_summary,omitempty"`
	FoodProperties    *FoodProperties    `json:"food_properties,omitempty"`
	ConfidenceNotes   *ConfidenceNotes   `json:"confidence_notes,omitempty"`
}

type IngredientSummary struct {
	PrimaryComponents     []string `json:"primary_components,omitempty"`
	AddedSugarsPresent    *bool    `json:"added_sugars_present,omitempty"`
	SweetenerType         string   `json:"sweetener_type,omitempty"`
	FiberLevel            string   `json:"fiber_level,omitempty"`
	ProteinLevel          string   `json:"protein_level,omitempty"`
	FatLevel              string   `json:"fat_level,omitempty"`
	ProcessingLevel       string   `json:"processing_level,omitempty"`
	UltraProcessedMarkers []string `json:"ultra_processed_markers,omitempty"`
	IngredientCount       *int     `json:"ingredient_count,omitempty"`
}

type FoodProperties struct {
	SugarDominant         *bool  `json:"sugar_dominant,omitempty"`
	FiberProteinSupport   string `json:"fiber_protein_support,omitempty"`
	EnergyReleasePattern  string `json:"energy_release_pattern,omitempty"`
	SatietySupport        string `json:"satiety_support,omitempty"`
	FormulationComplexity string `json:"formulation_complexity,omitempty"`
}

type ConfidenceNotes struct {
	DataCompleteness string   `json:"data_completeness,omitempty"`
	AmbiguityFlags   []string `json:"ambiguity_flags,omitempty"`
}

type TradeOffs struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// LegacyAnalysis is the response shape of the image analysis endpoint.
type LegacyAnalysis struct {
	Insight           string    `json:"insight"`
	DetailedReasoning string    `json:"detailed_reasoning"`
	TradeOffs         TradeOffs `json:"trade_offs"`
	UncertaintyNote   string    `json:"uncertainty_note,omitempty"`
}

type HistoryEntry struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Title   string `json:"title,omitempty"`
	Preview string `json:"preview"`
	Variant string `json:"variant"`
}

type Product struct {
	ID              string  `json:"id"`
	ProductName     string  `json:"product_name"`
	Brands          string  `json:"brands"`
	ImageURL        *string `json:"image_url"`
	NutritionGrade  string  `json:"nutrition_grade"`
	IngredientsText string  `json:"ingredients_text"`
}

type DetailedProduct struct {
	Product
	Categories          string         `json:"categories"`
	Labels              string         `json:"labels"`
	Quantity            string         `json:"quantity"`
	Packaging           string         `json:"packaging"`
	ManufacturingPlaces string         `json:"manufacturing_places"`
	Origins             string         `json:"origins"`
	Countries           string         `json:"countries"`
	ImageNutritionURL   *string        `json:"image_nutrition_url"`
	ImageIngredientsURL *string        `json:"image_ingredients_url"`
	Nutriments          map[string]any `json:"nutriments"`
	NutriscoreScore     *float64       `json:"nutriscore_score"`
	Allergens           string         `json:"allergens"`
	Traces              string         `json:"traces"`
	NovaGroup           *int           `json:"nova_group"`
	EcoscoreGrade       string         `json:"ecoscore_grade"`
	AdditivesTags       []string       `json:"additives_tags"`
}

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Preferences string `json:"preferences,omitempty"`
}
