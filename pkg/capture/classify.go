package capture

import "strings"

// classifyRule maps any of its substrings to a category.
type classifyRule struct {
	category Category
	needles  []string
}

// classifyRules are checked in order; the first match wins.
var classifyRules = []classifyRule{
	{CategoryAuth, []string{"/auth", "/login", "/token"}},
	{CategoryProjects, []string{"/project"}},
	{CategoryGeneration, []string{"/generate", "/ai"}},
	{CategoryExport, []string{"/export", "/download"}},
	{CategoryAssets, []string{"/asset", "/upload", "/image"}},
	{CategoryTemplates, []string{"/template"}},
	{CategoryComponents, []string{"/component"}},
	{CategoryUsers, []string{"/user", "/account"}},
}

// Classify returns the category for a request path. Matching is by
// case-insensitive substring, so "/api/userassets" is "users" and
// "/auth/project-settings" is "auth". The method does not affect the result.
func Classify(path, method string) Category {
	_ = method
	lower := strings.ToLower(path)
	for _, rule := range classifyRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// AllCategories returns every category in classification priority order.
func AllCategories() []Category {
	out := make([]Category, 0, len(classifyRules)+1)
	for _, rule := range classifyRules {
		out = append(out, rule.category)
	}
	return append(out, CategoryOther)
}
