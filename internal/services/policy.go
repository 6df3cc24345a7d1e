package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
)

// RealPurchasesDisabled is the policy switch for the interactive checkout dry run.
// The callback flow has its own, separately gated live path.
const RealPurchasesDisabled = true

// AllowedHost is the only storefront this tool operates on. Subdomains such as www
// are accepted; look-alike hosts are not.
const AllowedHost = "rappi.com.ar"

var restaurantPathHints = []string{"/restaurantes", "/restaurant"}

var blockedVerticalKeywords = []string{"supermercado", "farmacia", "turbo", "licores", "express"}

// AssertRestaurantURL validates that rawURL points at a restaurant page of the
// allowed storefront and returns its normalized form.
func AssertRestaurantURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, apperr.ErrMalformedInput)
	}

	if !strings.EqualFold(parsed.Scheme, "https") || !isAllowedHost(parsed.Hostname()) {
		return "", fmt.Errorf("only https://www.%s restaurant URLs are allowed: %w", AllowedHost, apperr.ErrPolicyViolation)
	}

	lowerPath := strings.ToLower(parsed.Path)
	isRestaurantPath := false
	for _, hint := range restaurantPathHints {
		if strings.Contains(lowerPath, hint) {
			isRestaurantPath = true
			break
		}
	}
	if !isRestaurantPath {
		return "", fmt.Errorf("only restaurant URLs are supported, other verticals are blocked: %w", apperr.ErrPolicyViolation)
	}

	return parsed.String(), nil
}

func isAllowedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == AllowedHost || strings.HasSuffix(host, "."+AllowedHost)
}

// AssertRestaurantVertical rejects scraped text that names a blocked vertical
func AssertRestaurantVertical(textBlob string) error {
	low := strings.ToLower(textBlob)
	for _, keyword := range blockedVerticalKeywords {
		if strings.Contains(low, keyword) {
			return fmt.Errorf("blocked vertical detected: %s: %w", keyword, apperr.ErrPolicyViolation)
		}
	}
	return nil
}
