package intent

import (
	"regexp"
)

// PatternSet is the deterministic pre-classifier: cheap regular-expression
// matches that run before the external oracle is consulted, saving a remote
// call for the frequent, unambiguous requests.
type PatternSet struct {
	rules []patternRule
}

type patternRule struct {
	re             *regexp.Regexp
	classification Classification
}

// NewPatternSet creates an empty pattern set.
func NewPatternSet() *PatternSet {
	return &PatternSet{}
}

// Add registers a pattern. Patterns are evaluated in registration order;
// the first match wins. Matches always carry full confidence.
func (p *PatternSet) Add(expr string, classification Classification) error {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return err
	}
	classification.Confidence = 1.0
	p.rules = append(p.rules, patternRule{re: re, classification: classification})
	return nil
}

// MustAdd is Add for static, known-good patterns.
func (p *PatternSet) MustAdd(expr string, classification Classification) {
	if err := p.Add(expr, classification); err != nil {
		panic(err)
	}
}

// Match returns the first matching classification, or nil.
func (p *PatternSet) Match(text string) *Classification {
	for _, rule := range p.rules {
		if rule.re.MatchString(text) {
			result := rule.classification
			return &result
		}
	}
	return nil
}

// Len reports the number of registered patterns.
func (p *PatternSet) Len() int {
	return len(p.rules)
}
