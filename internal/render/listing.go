package render

import (
	"fmt"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/vbonduro/unlabel/internal/domain"
)

const (
	NoHistoryText  = "No analyses yet."
	NoProductsText = "No products found."
)

func variantStyle(variant string) lipgloss.Style {
	switch variant {
	case "green":
		return lipgloss.NewStyle().Foreground(colorPositive)
	case "red":
		return lipgloss.NewStyle().Foreground(colorCaution)
	default:
		return lipgloss.NewStyle().Foreground(colorNeutral)
	}
}

func History(entries []domain.HistoryEntry) string {
	if len(entries) == 0 {
		return mutedStyle.Render(NoHistoryText)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.Preview
		}
		when := strings.TrimSpace(e.Date + " " + e.Time)
		line := variantStyle(e.Variant).Render("●") + " " + titleStyle.Render(title) + "  " + mutedStyle.Render(when)
		if e.Title != "" && e.Preview != "" {
			line += "\n  " + e.Preview
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func Products(products []domain.Product) string {
	if len(products) == 0 {
		return mutedStyle.Render(NoProductsText)
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		line := titleStyle.Render(productName(p)) + " " + mutedStyle.Render("["+p.ID+"]")
		if p.Brands != "" {
			line += "\n  " + p.Brands
		}
		if p.NutritionGrade != "" {
			line += "\n  " + gradeStyle(p.NutritionGrade).Render("Nutri-Score "+strings.ToUpper(p.NutritionGrade))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func productName(p domain.Product) string {
	if p.ProductName == "" {
		return "Unnamed product"
	}
	return p.ProductName
}

func gradeStyle(grade string) lipgloss.Style {
	switch strings.ToLower(grade) {
	case "a", "b":
		return lipgloss.NewStyle().Foreground(colorPositive)
	case "d", "e":
		return lipgloss.NewStyle().Foreground(colorCaution)
	default:
		return lipgloss.NewStyle().Foreground(colorNeutral)
	}
}

func Product(p *domain.DetailedProduct) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(productName(p.Product)))
	var rows []string
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, mutedStyle.Render(label+":")+" "+value)
		}
	}
	add("Brands", p.Brands)
	add("Quantity", p.Quantity)
	add("Categories", p.Categories)
	add("Labels", p.Labels)
	add("Packaging", p.Packaging)
	add("Origins", p.Origins)
	add("Manufactured in", p.ManufacturingPlaces)
	add("Sold in", p.Countries)
	if p.NutritionGrade != "" {
		add("Nutri-Score", gradeStyle(p.NutritionGrade).Render(strings.ToUpper(p.NutritionGrade)))
	}
	if p.NutriscoreScore != nil {
		add("Nutri-Score points", fmt.Sprintf("%g", *p.NutriscoreScore))
	}
	if p.NovaGroup != nil {
		add("NOVA group", fmt.Sprint(*p.NovaGroup))
	}
	add("Eco-Score", strings.ToUpper(p.EcoscoreGrade))
	add("Allergens", p.Allergens)
	add("Traces", p.Traces)
	add("Additives", strings.Join(p.AdditivesTags, ", "))
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(rows, "\n"))
	}
	section(&b, "Ingredients", p.IngredientsText)
	section(&b, "Nutriments per 100g", nutriments(p.Nutriments))
	return cardStyle(domain.ToneNeutral).Render(b.String())
}

// nutriments lists the per-100g values, which the service keys with a
// "_100g" suffix.
func nutriments(n map[string]any) string {
	keys := make([]string, 0, len(n))
	for k := range n {
		if strings.HasSuffix(k, "_100g") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	rows := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.ReplaceAll(strings.TrimSuffix(k, "_100g"), "-", " ")
		rows = append(rows, fmt.Sprintf("%s: %v", name, n[k]))
	}
	return strings.Join(rows, "\n")
}

func User(u *domain.User) string {
	lines := []string{titleStyle.Render(u.Name)}
	if u.Email != "" {
		lines = append(lines, u.Email)
	}
	if u.ID != "" {
		lines = append(lines, mutedStyle.Render("id "+u.ID))
	}
	return strings.Join(lines, "\n")
}
