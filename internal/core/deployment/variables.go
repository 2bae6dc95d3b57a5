package deployment

import "regexp"

// =============================================================================
// Variable Substitution Functions
// =============================================================================

// varPlaceholderRegex matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 is ":-default" when present, group 3 the default.
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values from the variables map.
//
// Behavior:
//   - ${VAR} - replaced with variables["VAR"] if set, otherwise kept as-is
//   - ${VAR:-default} - replaced with variables["VAR"] if set, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	SubstituteVariables("${APP_PORT}", map[string]string{"APP_PORT": "8000"})
//	// Returns: "8000"
//
//	SubstituteVariables("mongodb://${MONGO_SERVER:-localhost}", nil)
//	// Returns: "mongodb://localhost"
func SubstituteVariables(value string, variables map[string]string) string {
	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		sub := varPlaceholderRegex.FindStringSubmatch(match)
		if val, ok := variables[sub[1]]; ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}
