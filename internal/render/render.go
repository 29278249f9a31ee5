// Package render formats transcript messages and API listings for the
// terminal.
package render

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/vbonduro/unlabel/internal/capture"
	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/domain"
)

const (
	ThinkingText       = "Thinking…"
	PDFPlaceholderText = "PDF document ready for analysis"
)

var (
	colorPositive = lipgloss.Color("#22c55e")
	colorCaution  = lipgloss.Color("#ef4444")
	colorNeutral  = lipgloss.Color("#a3a3a3")
	colorAccent   = lipgloss.Color("#84cc16")
	colorMuted    = lipgloss.Color("#737373")

	userStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
	systemStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	italicStyle  = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)
)

// Options control how much of a decision is shown.
type Options struct {
	Details bool
}

func cardStyle(t domain.Tone) lipgloss.Style {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	switch t {
	case domain.TonePositive:
		return style.BorderForeground(colorPositive)
	case domain.ToneCaution:
		return style.BorderForeground(colorCaution)
	default:
		return style.BorderForeground(colorNeutral)
	}
}

// Badge renders a verdict label in its tone's colour.
func Badge(v domain.Verdict) string {
	style := lipgloss.NewStyle().Bold(true)
	switch v.Tone() {
	case domain.TonePositive:
		style = style.Foreground(colorPositive)
	case domain.ToneCaution:
		style = style.Foreground(colorCaution)
	default:
		style = style.Foreground(colorNeutral)
	}
	return style.Render(strings.ToUpper(v.Label()))
}

func Thinking() string {
	return systemStyle.Foreground(colorMuted).Render(ThinkingText)
}

// Transcript renders every message, followed by the thinking indicator when
// awaiting is set.
func Transcript(msgs []domain.Message, awaiting bool, opts Options) string {
	parts := make([]string, 0, len(msgs)+1)
	for _, m := range msgs {
		parts = append(parts, Message(m, opts))
	}
	if awaiting {
		parts = append(parts, Thinking())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Event renders a conversation event, or "" for events with nothing to show.
func Event(ev conversation.Event, opts Options) string {
	switch {
	case ev.Kind == conversation.EventMessage && ev.Message != nil:
		return Message(*ev.Message, opts)
	case ev.Kind == conversation.EventAwaiting && ev.Awaiting:
		return Thinking()
	default:
		return ""
	}
}

func Message(m domain.Message, opts Options) string {
	switch m.Kind {
	case domain.KindDecision:
		if m.Decision != nil {
			return Decision(m.Decision, opts)
		}
	case domain.KindLegacyAnalysis:
		if m.Analysis != nil {
			return Analysis(m.Analysis)
		}
	case domain.KindImage:
		return image(m)
	}
	if m.Role == domain.RoleUser {
		return userStyle.Render("You: " + m.Text)
	}
	return systemStyle.Render(m.Text)
}

func image(m domain.Message) string {
	lines := []string{"You: " + m.Text}
	switch {
	case m.ImagePreview != "":
		lines = append(lines, mutedStyle.Render("[image] "+m.Attachment))
	case m.Attachment != "":
		lines = append(lines, mutedStyle.Render("[pdf] "+m.Attachment))
	}
	return userStyle.Render(strings.Join(lines, "\n"))
}

// CapturePreview describes a confirmed capture before it is sent. PDFs have
// no preview and show a placeholder keyed by the file name.
func CapturePreview(res capture.Result) string {
	size := fmt.Sprintf("%.1f KB", float64(len(res.File.Data))/1024)
	if res.Preview == "" {
		return systemStyle.Render(PDFPlaceholderText + "\n" + mutedStyle.Render(res.File.Name+" · "+size))
	}
	return systemStyle.Render("Image ready for analysis\n" + mutedStyle.Render(res.File.Name+" · "+res.File.MediaType+" · "+size))
}

func Decision(d *domain.Decision, opts Options) string {
	var b strings.Builder

	summary := d.QuickInsight.Summary
	if summary == "" {
		summary = "Analyzing product..."
	}
	b.WriteString(titleStyle.Render(summary))
	b.WriteString("\n")
	if d.QuickInsight.UncertaintyReason != "" {
		b.WriteString(italicStyle.Render(d.QuickInsight.UncertaintyReason))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(Badge(d.Verdict))

	if opts.Details {
		writeDetails(&b, d)
	}
	return cardStyle(d.Verdict.Tone()).Render(b.String())
}

func writeDetails(b *strings.Builder, d *domain.Decision) {
	section(b, "Why this matters", bullets(d.Explanation.WhyThisMatters))
	section(b, "When it makes sense", d.Explanation.WhenItMakesSense)
	section(b, "What to know", d.Explanation.WhatToKnow)
	if len(d.KeySignals) > 0 {
		section(b, "Key signals", strings.Join(d.KeySignals, " · "))
	}
	if len(d.IngredientTranslations) > 0 {
		lines := make([]string, 0, len(d.IngredientTranslations))
		for _, tr := range d.IngredientTranslations {
			line := titleStyle.Render(tr.Term)
			if tr.Category != "" {
				line += " " + mutedStyle.Render("("+tr.Category+")")
			}
			lines = append(lines, line+"\n  "+tr.PlainExplanation)
		}
		section(b, "Ingredients in plain language", strings.Join(lines, "\n"))
	}
	if len(d.UncertaintyFlags) > 0 {
		section(b, "Uncertainty", bullets(d.UncertaintyFlags))
	}
	if d.IntentClassified != "" {
		section(b, "Question type", strings.ReplaceAll(d.IntentClassified, "_", " "))
	}
	if d.StructuredAnalysis != nil {
		section(b, "Technical details", structured(d.StructuredAnalysis))
	}
}

func structured(sa *domain.StructuredAnalysis) string {
	var rows []string
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, mutedStyle.Render(label+":")+" "+value)
		}
	}
	if s := sa.IngredientSummary; s != nil {
		add("Primary", strings.Join(s.PrimaryComponents, ", "))
		add("Added sugars", yesNo(s.AddedSugarsPresent))
		add("Sweetener", s.SweetenerType)
		add("Fiber", s.FiberLevel)
		add("Protein", s.ProteinLevel)
		add("Fat", s.FatLevel)
		add("Processing", s.ProcessingLevel)
		if s.IngredientCount != nil {
			add("Ingredient count", fmt.Sprint(*s.IngredientCount))
		}
		add("Ultra-processed markers", strings.Join(s.UltraProcessedMarkers, ", "))
	}
	if p := sa.FoodProperties; p != nil {
		add("Sugar dominant", yesNo(p.SugarDominant))
		add("Fiber/protein support", p.FiberProteinSupport)
		add("Energy release", p.EnergyReleasePattern)
		add("Satiety support", p.SatietySupport)
		add("Complexity", p.FormulationComplexity)
	}
	if c := sa.ConfidenceNotes; c != nil {
		add("Data completeness", c.DataCompleteness)
		add("Ambiguity", strings.Join(c.AmbiguityFlags, ", "))
	}
	return strings.Join(rows, "\n")
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "Yes"
	default:
		return "No"
	}
}

func Analysis(a *domain.LegacyAnalysis) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(a.Insight))
	if a.DetailedReasoning != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(a.DetailedReasoning))
	}
	section(&b, "Benefits", bullets(a.TradeOffs.Pros))
	section(&b, "Trade-offs", bullets(a.TradeOffs.Cons))
	if a.UncertaintyNote != "" {
		b.WriteString("\n\n")
		b.WriteString(italicStyle.Render(a.UncertaintyNote))
	}
	return cardStyle(domain.TonePositive).Render(b.String())
}

func section(b *strings.Builder, heading, body string) {
	if body == "" {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(headingStyle.Render(strings.ToUpper(heading)))
	b.WriteString("\n")
	b.WriteString(body)
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}
