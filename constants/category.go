package constants

import "strings"

// Category is the fixed vocabulary for receipt classification.
type Category string

const (
	FoodDining    Category = "food_dining"
	Grocery       Category = "grocery"
	Retail        Category = "retail"
	Travel        Category = "travel"
	Entertainment Category = "entertainment"
	Services      Category = "services"
	Healthcare    Category = "healthcare"
	Fuel          Category = "fuel"
	Other         Category = "other"
)

var allCategories = []Category{
	FoodDining,
	Grocery,
	Retail,
	Travel,
	Entertainment,
	Services,
	Healthcare,
	Fuel,
	Other,
}

func CategoriesAsStrings() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a model-provided label onto the fixed vocabulary.
// The bool reports whether the input resolved to a known category.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	// synonyms map
	synonyms := map[string]Category{
		"restaurant":   FoodDining,
		"restaurants":  FoodDining,
		"cafe":         FoodDining,
		"dining":       FoodDining,
		"food":         FoodDining,
		"supermarket":  Grocery,
		"groceries":    Grocery,
		"clothing":     Retail,
		"electronics":  Retail,
		"shopping":     Retail,
		"hotel":        Travel,
		"airline":      Travel,
		"taxi":         Travel,
		"transport":    Travel,
		"uber":         Travel,
		"lyft":         Travel,
		"movies":       Entertainment,
		"events":       Entertainment,
		"repairs":      Services,
		"dry_cleaning": Services,
		"pharmacy":     Healthcare,
		"medical":      Healthcare,
		"gas":          Fuel,
		"gas_station":  Fuel,
		"petrol":       Fuel,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}

	return Other, false
}
