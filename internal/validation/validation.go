// Package validation provides centralized input validation for dossier.
//
// Investor and asset names end up as file names and store keys, so the
// rules reject path separators, control characters and leading dots.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/xtxerr/dossier/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// InvestorRules returns the rules for investor names. Dots are rejected
// because they separate the investor from the asset kind.
func InvestorRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// AssetRules returns the rules for asset names.
func AssetRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required: %w", rules.MinLength, errors.ErrInvalidName)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed: %w", rules.MaxLength, errors.ErrInvalidName)
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.': %w", errors.ErrInvalidName)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d: %w", i, errors.ErrInvalidName)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d: %w", i, errors.ErrInvalidName)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d: %w", r, i, errors.ErrInvalidName)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateInvestor validates an investor name.
func ValidateInvestor(name string) error {
	return ValidateName(name, InvestorRules())
}

// ValidateAsset validates an asset name.
func ValidateAsset(name string) error {
	return ValidateName(name, AssetRules())
}

// =============================================================================
// Asset References
// =============================================================================

// AssetRef is a parsed "investor.kind" asset name.
type AssetRef struct {
	Investor string
	Kind     string
}

// ParseAssetRef parses an "investor.kind" reference.
func ParseAssetRef(ref string) (*AssetRef, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty asset reference: %w", errors.ErrInvalidName)
	}

	investor, kind, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, fmt.Errorf("invalid asset reference format: expected 'investor.kind', got '%s': %w", ref, errors.ErrInvalidName)
	}

	if err := ValidateInvestor(investor); err != nil {
		return nil, fmt.Errorf("invalid investor in asset reference: %w", err)
	}
	if err := ValidateName(kind, InvestorRules()); err != nil {
		return nil, fmt.Errorf("invalid kind in asset reference: %w", err)
	}

	return &AssetRef{Investor: investor, Kind: kind}, nil
}

// String returns the asset name.
func (r *AssetRef) String() string {
	return r.Investor + "." + r.Kind
}

// =============================================================================
// SQL Helpers
// =============================================================================

var sqlLikeMetaChars = regexp.MustCompile(`[%_\[\]\\]`)

// EscapeLikePattern escapes special characters in a LIKE pattern.
// Use together with ESCAPE '\'.
func EscapeLikePattern(pattern string) string {
	return sqlLikeMetaChars.ReplaceAllStringFunc(pattern, func(s string) string {
		return "\\" + s
	})
}

// SafeLikePrefix creates a safe LIKE prefix pattern.
func SafeLikePrefix(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}
