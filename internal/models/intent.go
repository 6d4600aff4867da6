package models

import "strings"

// Intent is the closed set of shopper intents the assistant routes on
type Intent string

const (
	IntentProductAdvice      Intent = "product_advice"
	IntentSizeRecommendation Intent = "size_recommendation"
	IntentStyleMatching      Intent = "style_matching"
	IntentOrderLookup        Intent = "order_lookup"
	IntentReturnExchange     Intent = "return_exchange"
	IntentGeneral            Intent = "general"
)

// AllIntents lists every intent in declaration order
var AllIntents = []Intent{
	IntentProductAdvice,
	IntentSizeRecommendation,
	IntentStyleMatching,
	IntentOrderLookup,
	IntentReturnExchange,
	IntentGeneral,
}

// Valid reports whether i is a member of the closed set
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

func (i Intent) String() string {
	return string(i)
}

// ParseIntent normalizes s and coerces anything outside the set to IntentGeneral
func ParseIntent(s string) Intent {
	intent := Intent(strings.ToLower(strings.TrimSpace(s)))
	if intent.Valid() {
		return intent
	}
	return IntentGeneral
}

// IntentNames returns the intent values as plain strings
func IntentNames() []string {
	names := make([]string, len(AllIntents))
	for i, intent := range AllIntents {
		names[i] = string(intent)
	}
	return names
}
