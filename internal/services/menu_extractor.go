package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

const unknownRestaurantName = "Unknown restaurant"

var (
	// Currency-tagged amount: "$ 12.500", "ARS 1.234,50", "ar$900"
	pricePattern = regexp.MustCompile(`(?i)(?:\$|\bars?\$?|\bar\$)\s*([0-9][0-9.\s]*(?:,[0-9]{1,2})?)`)
	// A price field may also carry a bare number
	barePricePattern   = regexp.MustCompile(`^([0-9][0-9.\s]*(?:,[0-9]{1,2})?)$`)
	priceLikePattern   = regexp.MustCompile(`(?i)(?:\$|\bars?\$?|\bar\$)\s*[0-9]`)
	leadingPunctuation = regexp.MustCompile(`^[\-:•·|]+`)
	nameActionSuffix   = regexp.MustCompile(`(?i)\b(?:agregar|añadir|anadir|sumar|personalizar|editar)\b.*$`)
	descActionSuffix   = regexp.MustCompile(`(?i)\b(?:agregar|añadir|anadir|sumar)\b.*$`)
	fieldDelimiters    = regexp.MustCompile(`[|·•]`)
	nameTruncators     = []string{" - ", ":", " – ", "–"}
)

// ExtractorConfig holds the tuning thresholds of the menu classifier. The defaults were
// tuned against the storefront's current markup and are policy, not invariants.
type ExtractorConfig struct {
	MinNameChars         int
	MaxNameChars         int
	MaxNameWords         int
	FallbackNameWords    int
	MinDescriptionChars  int
	MaxDescriptionChars  int
	MaxCategoryChars     int
	MaxPriceTokens       int
	MaxNestedItems       int
	SectionTitleMaxWords int
	FuzzyMatchMinChars   int
	ActionHints          []string
}

// DefaultExtractorConfig returns the thresholds used in production
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinNameChars:         3,
		MaxNameChars:         96,
		MaxNameWords:         12,
		FallbackNameWords:    9,
		MinDescriptionChars:  6,
		MaxDescriptionChars:  180,
		MaxCategoryChars:     64,
		MaxPriceTokens:       5,
		MaxNestedItems:       3,
		SectionTitleMaxWords: 4,
		FuzzyMatchMinChars:   8,
		ActionHints:          []string{"agregar", "anadir", "sumar", "ver mas", "personalizar", "editar"},
	}
}

// MenuExtractor classifies raw menu candidates and builds deduplicated catalogs
type MenuExtractor struct {
	cfg ExtractorConfig
	now func() time.Time
}

// NewMenuExtractor creates a new menu extractor
func NewMenuExtractor(cfg ExtractorConfig) *MenuExtractor {
	return &MenuExtractor{cfg: cfg, now: time.Now}
}

// candidateFields is a whitespace-normalized candidate
type candidateFields struct {
	name        string
	description string
	price       string
	category    string
	raw         string
	nested      int
}

func normalizeCandidate(c models.MenuCandidate) candidateFields {
	return candidateFields{
		name:        NormalizeWhitespace(c.NameText),
		description: NormalizeWhitespace(c.DescriptionText),
		price:       NormalizeWhitespace(c.PriceText),
		category:    NormalizeWhitespace(c.CategoryTitle),
		raw:         NormalizeWhitespace(c.RawText),
		nested:      c.NestedItems,
	}
}

// ParseCandidate classifies one candidate. It returns false when the candidate is not
// a sellable item (no price, no usable name, a section heading or a multi-item container).
func (e *MenuExtractor) ParseCandidate(c models.MenuCandidate) (*models.MenuItemDraft, bool) {
	fields := normalizeCandidate(c)

	if e.isStructuralNoise(fields) {
		return nil, false
	}

	price, ok := e.resolvePrice(fields)
	if !ok {
		return nil, false
	}

	name := e.resolveName(fields)
	if !e.isLikelyName(name) {
		return nil, false
	}

	category := e.resolveCategory(fields.category)
	description := e.resolveDescription(name, fields)
	name = e.decontaminateName(name, description, category)

	if e.isSectionTitle(name, category, fields) {
		return nil, false
	}

	return &models.MenuItemDraft{
		Name:        name,
		Description: description,
		Price:       price,
		Category:    category,
	}, true
}

// resolvePrice prefers the dedicated price field and falls back to the raw text
func (e *MenuExtractor) resolvePrice(fields candidateFields) (float64, bool) {
	if price, ok := extractPrice(fields.price, true); ok {
		return price, true
	}
	return extractPrice(fields.raw, false)
}

func extractPrice(text string, allowBareNumber bool) (float64, bool) {
	if text == "" {
		return 0, false
	}
	if match := pricePattern.FindStringSubmatch(text); match != nil {
		return TextToNumber(match[1])
	}
	if !allowBareNumber {
		return 0, false
	}
	if match := barePricePattern.FindStringSubmatch(text); match != nil {
		return TextToNumber(match[1])
	}
	return 0, false
}

// resolveName runs the name cascade: dedicated field, text before the first price,
// then the leading words of the raw text.
func (e *MenuExtractor) resolveName(fields candidateFields) string {
	if e.isLikelyName(fields.name) {
		return e.sanitizeName(fields.name)
	}

	beforePrice := fields.raw
	if loc := pricePattern.FindStringIndex(fields.raw); loc != nil {
		beforePrice = strings.TrimSpace(fields.raw[:loc[0]])
	}
	fallback := e.sanitizeName(fieldDelimiters.Split(beforePrice, 2)[0])
	if e.isLikelyName(fallback) {
		return fallback
	}

	words := strings.Fields(fieldDelimiters.Split(fields.raw, 2)[0])
	if len(words) > e.cfg.FallbackNameWords {
		words = words[:e.cfg.FallbackNameWords]
	}
	return e.sanitizeName(strings.Join(words, " "))
}

func (e *MenuExtractor) sanitizeName(value string) string {
	value = NormalizeWhitespace(value)
	value = leadingPunctuation.ReplaceAllString(value, "")
	value = nameActionSuffix.ReplaceAllString(value, "")
	return NormalizeWhitespace(value)
}

// isLikelyName rejects UI affordances and fragments that cannot be dish names
func (e *MenuExtractor) isLikelyName(value string) bool {
	text := e.sanitizeName(value)
	length := utf8.RuneCountInString(text)
	if length < e.cfg.MinNameChars || length > e.cfg.MaxNameChars {
		return false
	}
	if strings.Contains(text, "$") || !hasLetter(text) {
		return false
	}

	folded := NormalizeName(text)
	for _, hint := range e.cfg.ActionHints {
		if strings.Contains(folded, NormalizeName(hint)) {
			return false
		}
	}
	return true
}

// decontaminateName strips an adjacent description or category that the DOM scan
// glued onto the name, then truncates overly long names at the earliest separator.
func (e *MenuExtractor) decontaminateName(name, description, category string) string {
	if description != "" && description != name {
		name = e.stripFragment(name, description, 1)
	}
	// "Pizza Muzzarella" under "Pizza" must survive, so a category strip has to leave
	// a multi-word name behind.
	if category != models.DefaultCategory && category != name {
		name = e.stripFragment(name, category, 2)
	}

	if wordCount(name) <= e.cfg.MaxNameWords {
		return name
	}
	cuts := make([]int, 0, len(nameTruncators))
	for _, separator := range nameTruncators {
		if idx := strings.Index(name, separator); idx > 0 {
			cuts = append(cuts, idx)
		}
	}
	sort.Ints(cuts)
	for _, idx := range cuts {
		truncated := NormalizeWhitespace(name[:idx])
		if e.isLikelyName(truncated) {
			return truncated
		}
	}
	return name
}

func (e *MenuExtractor) stripFragment(name, fragment string, minWords int) string {
	if !strings.Contains(name, fragment) {
		return name
	}
	stripped := NormalizeWhitespace(strings.Replace(name, fragment, " ", 1))
	stripped = strings.TrimSpace(strings.Trim(stripped, "-:–|·•,."))
	if wordCount(stripped) < minWords || !e.isLikelyName(stripped) {
		return name
	}
	return e.sanitizeName(stripped)
}

// isSectionTitle detects grouping headers: the name repeats the category, or a short
// name is just the prefix of a node that holds other dishes and has no description of its own.
func (e *MenuExtractor) isSectionTitle(name, category string, fields candidateFields) bool {
	normName := NormalizeName(name)
	if normName == NormalizeName(category) {
		return true
	}
	if wordCount(name) > e.cfg.SectionTitleMaxWords {
		return false
	}

	normRaw := NormalizeName(fields.raw)
	if !strings.HasPrefix(normRaw, normName) {
		return false
	}
	if e.isLikelyDescription(e.sanitizeDescription(fields.description), name) {
		return false
	}

	between := normRaw[len(normName):]
	if loc := pricePattern.FindStringIndex(between); loc != nil {
		between = between[:loc[0]]
	}
	return hasLetter(between)
}

// isStructuralNoise rejects container nodes that hold several items
func (e *MenuExtractor) isStructuralNoise(fields candidateFields) bool {
	if fields.nested > e.cfg.MaxNestedItems {
		return true
	}

	distinct := map[string]struct{}{}
	for _, match := range pricePattern.FindAllStringSubmatch(fields.raw, -1) {
		distinct[strings.Join(strings.Fields(match[1]), "")] = struct{}{}
	}
	return len(distinct) > e.cfg.MaxPriceTokens
}

func (e *MenuExtractor) resolveDescription(name string, fields candidateFields) string {
	cleanedName := e.sanitizeName(name)

	if description := e.sanitizeDescription(fields.description); e.isLikelyDescription(description, cleanedName) {
		return description
	}

	loc := pricePattern.FindStringIndex(fields.raw)
	if loc == nil {
		return ""
	}
	tail := e.sanitizeDescription(fields.raw[loc[1]:])
	if e.isLikelyDescription(tail, cleanedName) {
		return tail
	}
	return ""
}

func (e *MenuExtractor) sanitizeDescription(value string) string {
	value = descActionSuffix.ReplaceAllString(NormalizeWhitespace(value), "")
	if utf8.RuneCountInString(value) > e.cfg.MaxDescriptionChars {
		value = string([]rune(value)[:e.cfg.MaxDescriptionChars])
	}
	return strings.TrimSpace(value)
}

func (e *MenuExtractor) isLikelyDescription(value, name string) bool {
	if utf8.RuneCountInString(value) < e.cfg.MinDescriptionChars {
		return false
	}
	if strings.EqualFold(value, name) {
		return false
	}
	return hasLetter(value) && !priceLikePattern.MatchString(value)
}

func (e *MenuExtractor) resolveCategory(title string) string {
	category := NormalizeWhitespace(title)
	if category == "" || utf8.RuneCountInString(category) > e.cfg.MaxCategoryChars || priceLikePattern.MatchString(category) {
		return models.DefaultCategory
	}
	return category
}

// CatalogItemID derives the stable catalog id of a dish
func CatalogItemID(name string, price float64) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "item"
	}
	return slug + "-" + strconv.FormatInt(RoundPrice(price), 10)
}

func dedupKey(name string, price float64) string {
	return NormalizeName(name) + "|" + strconv.FormatInt(RoundPrice(price), 10)
}

// BuildCatalog classifies candidates and merges them into a catalog with unique ids.
// The restaurant must pass the storefront policy checks.
func (e *MenuExtractor) BuildCatalog(meta models.RestaurantMeta, candidates []models.MenuCandidate) (*models.MenuCatalog, error) {
	restaurantURL, err := AssertRestaurantURL(meta.URL)
	if err != nil {
		return nil, err
	}

	restaurantName := NormalizeWhitespace(meta.Name)
	if restaurantName == "" {
		restaurantName = unknownRestaurantName
	}
	if err := AssertRestaurantVertical(restaurantName); err != nil {
		return nil, err
	}

	builder := newCatalogBuilder(e.cfg.FuzzyMatchMinChars)
	for _, candidate := range candidates {
		if draft, ok := e.ParseCandidate(candidate); ok {
			builder.add(*draft)
		}
	}

	items := builder.items()
	return &models.MenuCatalog{
		RestaurantName: restaurantName,
		RestaurantURL:  restaurantURL,
		ScrapedAt:      e.now().UTC(),
		ItemCount:      len(items),
		Items:          items,
	}, nil
}

// catalogBuilder merges drafts so every id is unique at construction time
type catalogBuilder struct {
	entries      []models.MenuItem
	byKey        map[string]int
	byID         map[string]int
	fuzzyMinimum int
}

func newCatalogBuilder(fuzzyMinimum int) *catalogBuilder {
	return &catalogBuilder{
		byKey:        map[string]int{},
		byID:         map[string]int{},
		fuzzyMinimum: fuzzyMinimum,
	}
}

func (b *catalogBuilder) add(draft models.MenuItemDraft) {
	key := dedupKey(draft.Name, draft.Price)
	if idx, ok := b.byKey[key]; ok {
		b.merge(idx, draft)
		return
	}
	if idx, ok := b.byID[CatalogItemID(draft.Name, draft.Price)]; ok {
		b.merge(idx, draft)
		return
	}
	if idx, ok := b.fuzzyMatch(draft); ok {
		b.merge(idx, draft)
		return
	}

	item := models.MenuItem{
		ID:          CatalogItemID(draft.Name, draft.Price),
		Name:        draft.Name,
		Description: draft.Description,
		Price:       draft.Price,
		Category:    draft.Category,
	}
	b.entries = append(b.entries, item)
	b.byKey[key] = len(b.entries) - 1
	b.byID[item.ID] = len(b.entries) - 1
}

// fuzzyMatch finds an entry with the same rounded price whose normalized name equals
// or contains the draft's (both sides long enough).
func (b *catalogBuilder) fuzzyMatch(draft models.MenuItemDraft) (int, bool) {
	incoming := NormalizeName(draft.Name)
	price := RoundPrice(draft.Price)

	for idx, entry := range b.entries {
		if RoundPrice(entry.Price) != price {
			continue
		}
		existing := NormalizeName(entry.Name)
		if existing == incoming {
			return idx, true
		}
		if utf8.RuneCountInString(existing) < b.fuzzyMinimum || utf8.RuneCountInString(incoming) < b.fuzzyMinimum {
			continue
		}
		if strings.Contains(existing, incoming) || strings.Contains(incoming, existing) {
			return idx, true
		}
	}
	return 0, false
}

func (b *catalogBuilder) merge(idx int, draft models.MenuItemDraft) {
	entry := &b.entries[idx]

	existing := NormalizeName(entry.Name)
	incoming := NormalizeName(draft.Name)
	switch {
	case existing == incoming:
		if utf8.RuneCountInString(draft.Name) < utf8.RuneCountInString(entry.Name) {
			entry.Name = draft.Name
		}
	case strings.Contains(incoming, existing):
		entry.Name = draft.Name
	}

	if entry.Description == "" && draft.Description != "" {
		entry.Description = draft.Description
	}
	if entry.Category == models.DefaultCategory && draft.Category != models.DefaultCategory {
		entry.Category = draft.Category
	}

	b.byKey[dedupKey(entry.Name, entry.Price)] = idx
	b.byKey[dedupKey(draft.Name, draft.Price)] = idx

	newID := CatalogItemID(entry.Name, entry.Price)
	if newID == entry.ID {
		return
	}
	if owner, taken := b.byID[newID]; taken && owner != idx {
		// the merged name now belongs to another entry's dish
		folded := *entry
		owner = b.fold(idx, owner)
		b.merge(owner, models.MenuItemDraft{
			Name:        folded.Name,
			Description: folded.Description,
			Price:       folded.Price,
			Category:    folded.Category,
		})
		return
	}
	delete(b.byID, entry.ID)
	entry.ID = newID
	b.byID[newID] = idx
}

// fold drops entry from and points its keys at into. It returns the shifted index of into.
func (b *catalogBuilder) fold(from, into int) int {
	b.entries = append(b.entries[:from], b.entries[from+1:]...)
	if into > from {
		into--
	}
	reindex := func(index map[string]int) {
		for key, pos := range index {
			switch {
			case pos == from:
				index[key] = into
			case pos > from:
				index[key] = pos - 1
			}
		}
	}
	reindex(b.byKey)
	reindex(b.byID)
	return into
}

func (b *catalogBuilder) items() []models.MenuItem {
	out := make([]models.MenuItem, len(b.entries))
	copy(out, b.entries)
	return out
}

// CandidatesFromText turns OCR output into raw-text candidates. A short unpriced line
// followed by a priced line is treated as a section heading; a price alone on its line
// is joined to the line before it.
func (e *MenuExtractor) CandidatesFromText(text string) []models.MenuCandidate {
	var candidates []models.MenuCandidate
	category := ""
	pending := ""

	for _, rawLine := range strings.Split(text, "\n") {
		line := NormalizeWhitespace(rawLine)
		if line == "" {
			continue
		}

		if !pricePattern.MatchString(line) {
			if pending != "" && wordCount(pending) <= e.cfg.SectionTitleMaxWords {
				category = pending
			}
			if hasLetter(line) {
				pending = line
			}
			continue
		}

		raw := line
		if !hasLetter(line) && pending != "" {
			raw = pending + " " + line
		} else if pending != "" && wordCount(pending) <= e.cfg.SectionTitleMaxWords {
			category = pending
		}
		pending = ""

		candidates = append(candidates, models.MenuCandidate{
			RawText:       raw,
			CategoryTitle: category,
		})
	}
	return candidates
}
