package datanorm

import (
	"regexp"
	"strings"
)

// Rule is one step of the campaign name cascade. Apply receives the
// preprocessed (trimmed, lower-cased, suffix-stripped) name.
type Rule struct {
	Name  string
	Apply func(name string) (Classification, bool)
}

// Name patterns match Unicode letters and spaces so accented keywords and
// non-breaking spaces survive. \w and \s alone are ASCII-only in RE2.
var (
	daypartSuffixRe = regexp.MustCompile(`[_\s\p{Z}]*\d{1,2}h(?:\d{1,2}m?)?$`)
	autoTokenRe     = regexp.MustCompile(`(?i)(?:^|[^a-z])(auto(?:[\s\p{Z}]?\d+(?:h\d*)?)?)(?:$|[^a-z])`)
	allKeyRe        = regexp.MustCompile(`(?i)(all[\s\p{Z}]?key(?:[\s\p{Z}]?[\p{L}\p{N}_]+)*)`)
	keywordTypeRe   = regexp.MustCompile(`^(.*?)[_\s\p{Z}]+(?:asin[_\s\p{Z}]*)?((?:b,p|a,b|p|b|ex|exp))(?:(?:[\s\p{Z}]*\d+h\d+|[\s\p{Z}]*\d+h|[\s\p{Z}]*\d+|)?)$`)
)

// rules is evaluated in order; the first rule that applies wins.
var rules = []Rule{
	{Name: "product-exp", Apply: productExpRule},
	{Name: "auto", Apply: autoRule},
	{Name: "all-key", Apply: allKeyRule},
	{Name: "keyword-type", Apply: keywordTypeRule},
}

// RuleNames returns the rule names in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// Classify decodes a raw campaign name into its keyword and match type.
// It is pure: the result depends only on raw.
func Classify(raw string) Classification {
	name := Preprocess(raw)
	for _, r := range rules {
		if c, ok := r.Apply(name); ok {
			c.Rule = r.Name
			return c
		}
	}
	return Classification{Rule: "unmatched"}
}

// Preprocess lower-cases the name and strips a trailing dayparting tag
// such as "_12h30m" or " 5h".
func Preprocess(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return daypartSuffixRe.ReplaceAllString(name, "")
}

func productExpRule(name string) (Classification, bool) {
	if !strings.HasSuffix(name, "_product exp") {
		return Classification{}, false
	}
	return Classification{Keyword: strPtr("product"), MatchType: MatchExactP}, true
}

func autoRule(name string) (Classification, bool) {
	if !strings.Contains(name, "auto") {
		return Classification{}, false
	}
	m := autoTokenRe.FindStringSubmatch(name)
	if m == nil {
		return Classification{MatchType: MatchAuto}, true
	}
	return Classification{Keyword: strPtr(strings.TrimSpace(m[1])), MatchType: MatchAuto}, true
}

func allKeyRule(name string) (Classification, bool) {
	if !strings.Contains(name, "all key") {
		return Classification{}, false
	}
	m := allKeyRe.FindStringSubmatch(name)
	if m == nil {
		return Classification{MatchType: MatchAllKey}, true
	}
	return Classification{Keyword: strPtr(strings.TrimSpace(m[1])), MatchType: MatchAllKey}, true
}

// keywordTypeRule handles the structural convention
// <account>_<marketplace>_<product>_<keyword...>_<type>.
func keywordTypeRule(name string) (Classification, bool) {
	m := keywordTypeRe.FindStringSubmatch(name)
	if m == nil {
		return Classification{}, false
	}
	keywordPart := strings.TrimSpace(m[1])
	typePart := strings.TrimSpace(m[2])

	parts := strings.Split(keywordPart, "_")
	var keyword string
	switch {
	case len(parts) > 3:
		keyword = strings.Join(parts[3:], " ")
	case len(parts) > 1:
		keyword = strings.Join(parts[1:], " ")
	default:
		keyword = keywordPart
	}
	return Classification{Keyword: strPtr(strings.TrimSpace(keyword)), MatchType: MatchType(typePart)}, true
}

func strPtr(s string) *string { return &s }
