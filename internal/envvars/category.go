// Package envvars categorises, filters and persists the backend's environment
// variables for the admin editor.
package envvars

import (
	"sort"
	"strings"
)

// Category tags.
const (
	CategoryDatabase = "database"
	CategoryJWT      = "jwt"
	CategoryN8N      = "n8n"
	CategoryPayment  = "payment"
	CategoryAWS      = "aws"
	CategoryEmail    = "email"
	CategoryServer   = "server"
	CategoryOther    = "other"
)

// Variable is a single key/value pair as shown in the editor.
type Variable struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
}

// Rule tags a key when Match returns true.
type Rule struct {
	Match func(key string) bool
	Tag   string
}

// Categorizer evaluates its rules top to bottom; the first match wins.
type Categorizer struct {
	rules    []Rule
	fallback string
}

// NewCategorizer builds a categorizer from an ordered rule list.
func NewCategorizer(fallback string, rules ...Rule) *Categorizer {
	return &Categorizer{rules: rules, fallback: fallback}
}

// DefaultCategorizer returns the rule set used by the admin editor.
func DefaultCategorizer() *Categorizer {
	return NewCategorizer(CategoryOther,
		Rule{Match: anyOf(hasPrefix("MONGODB_", "DATABASE_", "REDIS_"), contains("MONGO")), Tag: CategoryDatabase},
		Rule{Match: hasPrefix("JWT_"), Tag: CategoryJWT},
		Rule{Match: anyOf(hasPrefix("N8N_"), contains("_N8N_")), Tag: CategoryN8N},
		Rule{Match: hasPrefix("RAZORPAY_"), Tag: CategoryPayment},
		Rule{Match: hasPrefix("AWS_"), Tag: CategoryAWS},
		Rule{Match: hasPrefix("SMTP_", "EMAIL_"), Tag: CategoryEmail},
		Rule{Match: anyOf(hasPrefix("NEXT_PUBLIC_", "BACKEND_"), equals("PORT", "NODE_ENV", "FRONTEND_URL")), Tag: CategoryServer},
	)
}

// Categorize returns the tag of the first rule matching key.
func (c *Categorizer) Categorize(key string) string {
	k := strings.ToUpper(strings.TrimSpace(key))
	for _, r := range c.rules {
		if r.Match(k) {
			return r.Tag
		}
	}
	return c.fallback
}

// Tag builds the editor view of a key/value map, sorted by key.
func (c *Categorizer) Tag(values map[string]string) []Variable {
	vars := make([]Variable, 0, len(values))
	for k, v := range values {
		vars = append(vars, Variable{Key: k, Value: v, Category: c.Categorize(k)})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	return vars
}

// Filter keeps variables whose key, value or category contains query,
// ignoring case. An empty query keeps everything.
func Filter(vars []Variable, query string) []Variable {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return vars
	}
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		if strings.Contains(strings.ToLower(v.Key), q) ||
			strings.Contains(strings.ToLower(v.Value), q) ||
			strings.Contains(strings.ToLower(v.Category), q) {
			out = append(out, v)
		}
	}
	return out
}

func hasPrefix(prefixes ...string) func(string) bool {
	return func(key string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				return true
			}
		}
		return false
	}
}

func contains(sub string) func(string) bool {
	return func(key string) bool { return strings.Contains(key, sub) }
}

func equals(names ...string) func(string) bool {
	return func(key string) bool {
		for _, n := range names {
			if key == n {
				return true
			}
		}
		return false
	}
}

func anyOf(preds ...func(string) bool) func(string) bool {
	return func(key string) bool {
		for _, p := range preds {
			if p(key) {
				return true
			}
		}
		return false
	}
}
