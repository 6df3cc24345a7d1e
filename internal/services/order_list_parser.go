package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

// OrderListParser reads plain-text or markdown order lists as pasted from a chat:
//
//	restaurant: https://www.rappi.com.ar/restaurantes/215137-guber
//	- [ ] 2x Pizza Muzzarella (sin aceitunas)
//	- Faina
//	Empanada de carne x3, bien cocidas
//
// Headings and blank lines are skipped.
type OrderListParser struct {
	bulletPattern     *regexp.Regexp
	restaurantPattern *regexp.Regexp
	leadingQuantity   *regexp.Regexp
	trailingQuantity  *regexp.Regexp
	fractionPattern   *regexp.Regexp
	parenPattern      *regexp.Regexp
}

// NewOrderListParser creates a new parser instance
func NewOrderListParser() *OrderListParser {
	return &OrderListParser{
		// Match "- [ ] ", "- [x] ", "- ", "* " and "• " bullets
		bulletPattern: regexp.MustCompile(`^(?:[-*•]\s*(?:\[[ xX]?\]\s*)?)`),

		restaurantPattern: regexp.MustCompile(`(?i)^(?:restaurant|restaurante|restaurantUrl|url)\s*:\s*(https?://\S+)$`),

		// Match quantity at start: 2, 2x, 2 x, x2, 2*
		leadingQuantity: regexp.MustCompile(`(?i)^(?:x\s*)?(\d+)\s*(?:x|\*)?\s+`),

		// Match quantity at end: x3, X 3
		trailingQuantity: regexp.MustCompile(`(?i)\s+x\s*(\d+)$`),

		fractionPattern: regexp.MustCompile(`^\d+(?:[.,]\d+|\s*/\s*\d+)|[½¼¾⅓⅔]`),

		parenPattern: regexp.MustCompile(`\(([^)]+)\)`),
	}
}

// Parse converts the list into a validated order template
func (p *OrderListParser) Parse(content string) (*models.OrderTemplate, error) {
	template := &models.OrderTemplate{}

	for index, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if matches := p.restaurantPattern.FindStringSubmatch(line); len(matches) == 2 {
			template.RestaurantURL = matches[1]
			continue
		}

		orderLine, err := p.parseLine(line, index+1)
		if err != nil {
			return nil, err
		}
		template.Items = append(template.Items, orderLine)
	}

	if len(template.Items) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "order list has no items"}
	}
	if err := Validate(template); err != nil {
		return nil, err
	}
	return template, nil
}

func (p *OrderListParser) parseLine(line string, lineNumber int) (models.OrderLine, error) {
	field := fmt.Sprintf("line %d", lineNumber)
	remaining := strings.TrimSpace(p.bulletPattern.ReplaceAllString(line, ""))

	if p.fractionPattern.MatchString(remaining) {
		return models.OrderLine{}, &ValidationError{Field: field, Msg: "quantities must be whole numbers"}
	}

	remaining, notes := p.extractNotes(remaining)
	remaining, quantity, err := p.extractQuantity(remaining)
	if err != nil {
		return models.OrderLine{}, &ValidationError{Field: field, Msg: err.Error()}
	}

	name := cleanOrderName(remaining)
	if name == "" {
		return models.OrderLine{}, &ValidationError{Field: field, Msg: "item is missing a name"}
	}

	return models.OrderLine{Name: name, Quantity: quantity, Notes: notes}, nil
}

// extractQuantity handles "2x name", "2 name" and "name x2". 0 means unspecified.
func (p *OrderListParser) extractQuantity(s string) (string, int, error) {
	if matches := p.leadingQuantity.FindStringSubmatch(s); len(matches) == 2 {
		qty, err := strconv.Atoi(matches[1])
		if err != nil || qty <= 0 {
			return s, 0, fmt.Errorf("quantity %q must be a positive integer", matches[1])
		}
		return strings.TrimSpace(s[len(matches[0]):]), qty, nil
	}

	if loc := p.trailingQuantity.FindStringSubmatchIndex(s); loc != nil {
		qty, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil || qty <= 0 {
			return s, 0, fmt.Errorf("quantity %q must be a positive integer", s[loc[2]:loc[3]])
		}
		return strings.TrimSpace(s[:loc[0]]), qty, nil
	}

	return s, 0, nil
}

// extractNotes pulls out parenthetical content and anything after the first comma
func (p *OrderListParser) extractNotes(s string) (string, string) {
	var notes []string

	if matches := p.parenPattern.FindAllStringSubmatch(s, -1); len(matches) > 0 {
		for _, m := range matches {
			notes = append(notes, strings.TrimSpace(m[1]))
		}
		s = p.parenPattern.ReplaceAllString(s, "")
	}

	if name, after, found := strings.Cut(s, ","); found {
		if after = strings.TrimSpace(after); after != "" {
			notes = append(notes, after)
		}
		s = name
	}

	return strings.TrimSpace(s), strings.Join(notes, "; ")
}

func cleanOrderName(s string) string {
	return NormalizeWhitespace(strings.TrimRight(strings.TrimSpace(s), ".,;:-_"))
}
