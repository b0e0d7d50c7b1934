package layer

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule maps a role to the keywords that identify it.
type Rule struct {
	Role     Role     `yaml:"role"`
	Keywords []string `yaml:"keywords"`
	// Content allows the first feature's name to classify an unnamed or
	// generically named folder.
	Content bool `yaml:"content"`
}

// Rules is the classification table. Rules are evaluated in slice order;
// the first matching rule wins.
type Rules struct {
	Roles    []Rule   `yaml:"roles"`
	Business []string `yaml:"business"`
}

// DefaultRules returns the built-in classification table.
func DefaultRules() Rules {
	return Rules{
		Roles: []Rule{
			{Role: RoleHomepass, Keywords: []string{"homepass", "hp", "home"}},
			{Role: RoleFAT, Keywords: []string{"fat"}, Content: true},
			{Role: RolePole, Keywords: []string{"pole", "tiang"}, Content: true},
			{Role: RoleFDT, Keywords: []string{"fdt"}, Content: true},
			{Role: RoleArea, Keywords: []string{"distribusi"}},
		},
		Business: []string{"biz", "bisnis", "business"},
	}
}

// LoadRules reads a classification table from a YAML file of the form
//
//	classification:
//	  roles:
//	    - role: POLE
//	      keywords: [pole, tiang]
//	      content: true
//	  business: [biz]
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "layer: read rules %s", path)
	}

	var wrapper struct {
		Classification Rules `yaml:"classification"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Rules{}, eris.Wrap(err, "layer: parse rules")
	}

	rules := wrapper.Classification
	if len(rules.Roles) == 0 {
		return Rules{}, eris.Errorf("layer: rules %s define no roles", path)
	}
	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	return rules.normalized(), nil
}

func (r Rules) validate() error {
	seen := make(map[Role]bool, len(r.Roles))
	for _, rule := range r.Roles {
		if !rule.Role.Valid() {
			return eris.Errorf("layer: unknown role %q", rule.Role)
		}
		if seen[rule.Role] {
			return eris.Errorf("layer: role %q listed twice", rule.Role)
		}
		seen[rule.Role] = true
		if len(rule.Keywords) == 0 {
			return eris.Errorf("layer: role %q has no keywords", rule.Role)
		}
	}
	return nil
}

func (r Rules) normalized() Rules {
	out := Rules{Roles: make([]Rule, 0, len(r.Roles))}
	for _, rule := range r.Roles {
		out.Roles = append(out.Roles, Rule{
			Role:     rule.Role,
			Keywords: lowerAll(rule.Keywords),
			Content:  rule.Content,
		})
	}
	out.Business = lowerAll(r.Business)
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchName returns every role whose keywords occur in name, in rule order.
// Matching is a case-insensitive substring test.
func (r Rules) MatchName(name string) []Role {
	lower := strings.ToLower(name)
	var roles []Role
	for _, rule := range r.Roles {
		if containsAny(lower, rule.Keywords) {
			roles = append(roles, rule.Role)
		}
	}
	return roles
}

// MatchContent classifies by a feature name, considering only rules with
// Content set.
func (r Rules) MatchContent(featureName string) (Role, bool) {
	lower := strings.ToLower(featureName)
	for _, rule := range r.Roles {
		if rule.Content && containsAny(lower, rule.Keywords) {
			return rule.Role, true
		}
	}
	return "", false
}

// IsBusiness reports whether a homepass folder name marks the business subset.
func (r Rules) IsBusiness(name string) bool {
	return containsAny(strings.ToLower(name), r.Business)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
