// Package suggest produces remediation phrasing advice for detected abuse
// categories, shown to senders before their message is blocked.
package suggest

// byCategory maps each abuse category to its rewording advice.
var byCategory = map[string]string{
	"harassment":        "Consider using more respectful language when expressing disagreement.",
	"hate_speech":       "Please avoid language that targets or discriminates against groups of people.",
	"spam":              "Focus on genuine communication rather than promotional content.",
	"threats":           "Express your feelings without threatening language or implications of harm.",
	"cyberbullying":     "Try to communicate constructively rather than attacking the person.",
	"sexual_harassment": "Keep your communication appropriate and professional.",
}

// categoryOrder fixes the emission order so results are deterministic.
var categoryOrder = []string{
	"harassment", "hate_speech", "spam", "threats", "cyberbullying", "sexual_harassment",
}

// ForCategories returns one suggestion per recognized category, in a fixed
// order, ignoring categories without registered advice.
func ForCategories(categories []string) []string {
	present := make(map[string]bool, len(categories))
	for _, c := range categories {
		present[c] = true
	}

	var out []string
	for _, c := range categoryOrder {
		if present[c] {
			out = append(out, byCategory[c])
		}
	}
	return out
}

// Register adds or replaces the advice for a category. Categories added
// here are appended to the emission order. Intended for init-time
// configuration; not safe to call concurrently with ForCategories.
func Register(category, advice string) {
	if _, known := byCategory[category]; !known {
		categoryOrder = append(categoryOrder, category)
	}
	byCategory[category] = advice
}
