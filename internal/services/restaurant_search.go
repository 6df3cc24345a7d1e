package services

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

const (
	defaultSearchMax   = 20
	maxSnippetChars    = 220
	minRestaurantChars = 3
	maxRestaurantChars = 90
)

var (
	ratingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:★|⭐|rating|calificacion|calificación)\s*([0-9](?:[.,][0-9])?)`),
		regexp.MustCompile(`(?i)([0-9](?:[.,][0-9])?)\s*(?:★|⭐)`),
	}
	freeDeliveryPattern = regexp.MustCompile(`(?i)(?:env(?:í|i)o|delivery)\s+gratis`)
	deliveryFeePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)env(?:í|i)o\s*(?:desde)?\s*\$\s*([0-9.,]+)`),
		regexp.MustCompile(`(?i)delivery\s*(?:desde)?\s*\$\s*([0-9.,]+)`),
		regexp.MustCompile(`(?i)\$\s*([0-9.,]+)\s*(?:env(?:í|i)o|delivery)`),
	}
	nonAlphanumeric      = regexp.MustCompile(`[^a-z0-9\s]`)
	restaurantSeparators = regexp.MustCompile(`[|·•]+`)
	blobSeparators       = regexp.MustCompile(`\s{2,}|\||·|•`)
	leadingDashColon     = regexp.MustCompile(`^\s*[-:]+\s*`)
	numericSlugPrefix    = regexp.MustCompile(`^\d+-`)

	genericPathSegments = map[string]bool{
		"delivery": true, "restaurant": true, "restaurantes": true,
		"search": true, "categoria": true, "categorias": true,
	}
	queryStopwords = map[string]bool{
		"a": true, "al": true, "con": true, "de": true, "del": true, "el": true, "en": true, "la": true,
		"las": true, "los": true, "para": true, "por": true, "un": true, "una": true, "y": true,
	}
	rejectedNameHints = []string{"envio", "delivery", "calificacion", "rating", "pedido minimo", "desde", "agregar", "sumar", "ver mas"}
)

// RankWeights are the relevance weights of the intent re-ranking. They are tuning
// parameters, not a contract.
type RankWeights struct {
	QueryInName           float64
	QueryInSnippet        float64
	QueryInURL            float64
	TokenWholeWordName    float64
	TokenPartialName      float64
	TokenWholeWordSnippet float64
	TokenPartialSnippet   float64
	TokenInURL            float64
	MaxRatingBonus        float64
	FreeDeliveryBonus     float64
	IntentScoreThreshold  float64
	MinTokenChars         int
}

// DefaultRankWeights returns the weights used in production
func DefaultRankWeights() RankWeights {
	return RankWeights{
		QueryInName:           120,
		QueryInSnippet:        45,
		QueryInURL:            30,
		TokenWholeWordName:    30,
		TokenPartialName:      16,
		TokenWholeWordSnippet: 10,
		TokenPartialSnippet:   4,
		TokenInURL:            6,
		MaxRatingBonus:        5,
		FreeDeliveryBonus:     1,
		IntentScoreThreshold:  70,
		MinTokenChars:         3,
	}
}

// RestaurantRanker turns raw search cards into validated, ranked restaurants
type RestaurantRanker struct {
	weights RankWeights
}

// NewRestaurantRanker creates a new restaurant ranker
func NewRestaurantRanker(weights RankWeights) *RestaurantRanker {
	return &RestaurantRanker{weights: weights}
}

// BuildRestaurantsSearchURL builds the storefront search URL for a query and city
func BuildRestaurantsSearchURL(baseURL, query, city string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	search := base.ResolveReference(&url.URL{Path: "/restaurantes"})
	values := url.Values{}
	if query != "" {
		values.Set("query", query)
	}
	if city != "" {
		values.Set("city", city)
	}
	search.RawQuery = values.Encode()
	return search.String(), nil
}

// Rank validates, filters and orders search cards. When any card matches the query
// intent, only intent matches are returned.
func (r *RestaurantRanker) Rank(cards []models.RestaurantCard, params models.RestaurantSearchParams) []models.Restaurant {
	seen := map[string]bool{}
	var results []models.Restaurant

	for _, card := range cards {
		safeURL, ok := NormalizeRestaurantURL(card.Href, params.BaseURL)
		if !ok || seen[safeURL] {
			continue
		}
		seen[safeURL] = true

		snippet := NormalizeWhitespace(strings.Join(append([]string{card.TextBlob}, card.ShortText...), " "))
		if utf8.RuneCountInString(snippet) > maxSnippetChars {
			snippet = string([]rune(snippet)[:maxSnippetChars])
		}
		if AssertRestaurantVertical(snippet) != nil {
			continue
		}

		restaurant := models.Restaurant{
			Name:        PickRestaurantName(card),
			URL:         safeURL,
			Rating:      parseRating(card.TextBlob),
			DeliveryFee: parseDeliveryFee(card.TextBlob),
			Snippet:     snippet,
		}
		if params.MinRating != nil && restaurant.Rating != nil && *restaurant.Rating < *params.MinRating {
			continue
		}
		if params.DeliveryFeeMax != nil && restaurant.DeliveryFee != nil && *restaurant.DeliveryFee > *params.DeliveryFeeMax {
			continue
		}
		results = append(results, restaurant)
	}

	results = r.rankByQuery(results, params.Query)

	limit := params.Max
	if limit <= 0 {
		limit = defaultSearchMax
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

type scoredRestaurant struct {
	restaurant  models.Restaurant
	score       float64
	intentMatch bool
}

func (r *RestaurantRanker) rankByQuery(results []models.Restaurant, query string) []models.Restaurant {
	normalizedQuery, tokens := r.queryInfo(query)

	scored := make([]scoredRestaurant, 0, len(results))
	hasIntent := false
	for _, restaurant := range results {
		entry := r.score(restaurant, normalizedQuery, tokens)
		hasIntent = hasIntent || entry.intentMatch
		scored = append(scored, entry)
	}

	pool := scored
	if hasIntent {
		pool = make([]scoredRestaurant, 0, len(scored))
		for _, entry := range scored {
			if entry.intentMatch {
				pool = append(pool, entry)
			}
		}
	}

	// Collators keep internal buffers, so each ranking gets its own
	collator := collate.New(language.Spanish, collate.IgnoreCase)
	sort.SliceStable(pool, func(i, j int) bool {
		left, right := pool[i], pool[j]
		if left.score != right.score {
			return left.score > right.score
		}
		if lr, rr := ratingOrDefault(left.restaurant.Rating), ratingOrDefault(right.restaurant.Rating); lr != rr {
			return lr > rr
		}
		if lf, rf := feeOrDefault(left.restaurant.DeliveryFee), feeOrDefault(right.restaurant.DeliveryFee); lf != rf {
			return lf < rf
		}
		return collator.CompareString(left.restaurant.Name, right.restaurant.Name) < 0
	})

	ranked := make([]models.Restaurant, 0, len(pool))
	for _, entry := range pool {
		ranked = append(ranked, entry.restaurant)
	}
	return ranked
}

func ratingOrDefault(rating *float64) float64 {
	if rating == nil {
		return -1
	}
	return *rating
}

func feeOrDefault(fee *float64) float64 {
	if fee == nil {
		return math.Inf(1)
	}
	return *fee
}

func (r *RestaurantRanker) queryInfo(query string) (string, []string) {
	normalized := normalizeSearchText(query)
	seen := map[string]bool{}
	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if len(token) < r.weights.MinTokenChars || queryStopwords[token] || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return normalized, tokens
}

func (r *RestaurantRanker) score(restaurant models.Restaurant, query string, tokens []string) scoredRestaurant {
	entry := scoredRestaurant{restaurant: restaurant}
	if query == "" && len(tokens) == 0 {
		return entry
	}

	w := r.weights
	name := normalizeSearchText(restaurant.Name)
	snippet := normalizeSearchText(restaurant.Snippet)
	urlPath := normalizedURLPath(restaurant.URL)

	score := 0.0
	if query != "" {
		if strings.Contains(name, query) {
			score += w.QueryInName
		}
		if strings.Contains(snippet, query) {
			score += w.QueryInSnippet
		}
		if strings.Contains(urlPath, query) {
			score += w.QueryInURL
		}
	}

	matchedTokens := 0
	for _, token := range tokens {
		tokenScore := 0.0
		switch {
		case hasWholeWord(name, token):
			tokenScore += w.TokenWholeWordName
		case strings.Contains(name, token):
			tokenScore += w.TokenPartialName
		}
		switch {
		case hasWholeWord(snippet, token):
			tokenScore += w.TokenWholeWordSnippet
		case strings.Contains(snippet, token):
			tokenScore += w.TokenPartialSnippet
		}
		if strings.Contains(urlPath, token) {
			tokenScore += w.TokenInURL
		}
		if tokenScore > 0 {
			matchedTokens++
			score += tokenScore
		}
	}

	if restaurant.Rating != nil {
		score += math.Max(0, math.Min(*restaurant.Rating, w.MaxRatingBonus))
	}
	if restaurant.DeliveryFee != nil && *restaurant.DeliveryFee == 0 {
		score += w.FreeDeliveryBonus
	}

	entry.score = score
	entry.intentMatch = matchedTokens > 0 || score >= w.IntentScoreThreshold
	return entry
}

// normalizeSearchText folds text to lowercase ASCII words separated by single spaces
func normalizeSearchText(value string) string {
	folded := FoldDiacritics(strings.ToLower(value))
	return NormalizeWhitespace(nonAlphanumeric.ReplaceAllString(folded, " "))
}

func normalizedURLPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return normalizeSearchText(strings.ReplaceAll(parsed.Path, "/", " "))
}

// hasWholeWord expects normalized text, where words are separated by single spaces
func hasWholeWord(text, token string) bool {
	for _, word := range strings.Fields(text) {
		if word == token {
			return true
		}
	}
	return false
}

// NormalizeRestaurantURL resolves href against baseURL, drops query and fragment, and
// accepts it only if it is a restaurant detail page on the allowed storefront.
func NormalizeRestaurantURL(href, baseURL string) (string, bool) {
	if strings.TrimSpace(href) == "" {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawQuery = ""
	if !IsRestaurantDetailPath(resolved.Path) {
		return "", false
	}

	safeURL, err := AssertRestaurantURL(resolved.String())
	if err != nil {
		return "", false
	}
	return safeURL, true
}

// IsRestaurantDetailPath reports whether path names a single restaurant rather than a
// listing or category page.
func IsRestaurantDetailPath(path string) bool {
	path = strings.TrimRight(strings.ToLower(strings.TrimSpace(path)), "/")
	if path == "" || path == "/restaurantes" || path == "/restaurant" {
		return false
	}
	if !strings.HasPrefix(path, "/restaurantes/") && !strings.HasPrefix(path, "/restaurant/") {
		return false
	}

	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return false
	}
	return !genericPathSegments[parts[len(parts)-1]]
}

// PickRestaurantName chooses the display name of a search card: explicit name
// candidates first, then short card texts, the anchor text, the card text and finally
// the URL slug.
func PickRestaurantName(card models.RestaurantCard) string {
	var candidates []string
	push := func(value string) {
		clean := NormalizeWhitespace(value)
		if clean == "" {
			return
		}
		for _, existing := range candidates {
			if existing == clean {
				return
			}
		}
		candidates = append(candidates, clean)
	}

	for _, value := range card.NameCandidates {
		push(value)
	}
	for _, value := range card.ShortText {
		push(value)
	}
	push(card.AnchorText)

	for _, candidate := range candidates {
		for _, fragment := range restaurantSeparators.Split(candidate, -1) {
			if clean := sanitizeRestaurantName(fragment); isLikelyRestaurantName(clean) {
				return clean
			}
		}
		if clean := sanitizeRestaurantName(candidate); isLikelyRestaurantName(clean) {
			return clean
		}
	}

	for _, segment := range blobSeparators.Split(card.TextBlob, -1) {
		if clean := sanitizeRestaurantName(segment); isLikelyRestaurantName(clean) {
			return clean
		}
	}

	if name := nameFromRestaurantURL(card.Href); name != "" {
		return name
	}
	return unknownRestaurantName
}

func sanitizeRestaurantName(value string) string {
	value = restaurantSeparators.ReplaceAllString(NormalizeWhitespace(value), " ")
	return strings.TrimSpace(leadingDashColon.ReplaceAllString(value, ""))
}

func isLikelyRestaurantName(candidate string) bool {
	length := utf8.RuneCountInString(candidate)
	if length < minRestaurantChars || length > maxRestaurantChars {
		return false
	}
	if strings.ContainsAny(candidate, "<>$") || !hasLetter(candidate) {
		return false
	}
	normalized := normalizeSearchText(candidate)
	for _, hint := range rejectedNameHints {
		if strings.Contains(normalized, hint) {
			return false
		}
	}
	return true
}

func nameFromRestaurantURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if genericPathSegments[strings.ToLower(last)] {
		return ""
	}

	slug := strings.TrimSpace(strings.ReplaceAll(numericSlugPrefix.ReplaceAllString(last, ""), "-", " "))
	if !isLikelyRestaurantName(slug) {
		return ""
	}

	words := strings.Fields(slug)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// parseRating reads a 0-5 star rating from a search card ("Calificacion 4,5", "4.8 ★")
func parseRating(text string) *float64 {
	for _, pattern := range ratingPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		rating, err := strconv.ParseFloat(strings.Replace(match[1], ",", ".", 1), 64)
		if err == nil {
			return &rating
		}
	}
	return nil
}

// parseDeliveryFee reads the delivery fee of a search card; free delivery is zero
func parseDeliveryFee(text string) *float64 {
	if freeDeliveryPattern.MatchString(text) {
		zero := 0.0
		return &zero
	}
	for _, pattern := range deliveryFeePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if fee, ok := TextToNumber(match[1]); ok {
			return &fee
		}
	}
	return nil
}
