// Package policy maps roles to the set of tables they may query. The role set
// is closed: an unknown role resolves to no access, never to the wildcard.
// Policies are loaded once at startup and are immutable for the process
// lifetime; changing access means redeploying configuration.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tabletalk/tabletalk/internal/model"
)

// Wildcard grants a role access to every table in the catalog.
const Wildcard = "*"

// Policy is an immutable role → allowed-tables mapping.
type Policy struct {
	roles map[string][]string
}

// policyFile is the on-disk YAML shape:
//
//	roles:
//	  analyst:
//	    tables: [sales, users, orders]
//	  admin:
//	    tables: ["*"]
type policyFile struct {
	Roles map[string]struct {
		Tables []string `yaml:"tables"`
	} `yaml:"roles"`
}

// Load reads and parses a roles policy file. Environment variables referenced
// as ${VAR_NAME} in the file are expanded before parsing.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var f policyFile
	if err := yaml.Unmarshal([]byte(content), &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("policy file %s defines no roles", path)
	}

	roles := make(map[string][]string, len(f.Roles))
	for role, def := range f.Roles {
		roles[strings.ToLower(role)] = normalizeTables(def.Tables)
	}
	return &Policy{roles: roles}, nil
}

// New builds a policy from an in-memory role map. Used by tests and by the
// built-in default policy.
func New(roles map[string][]string) *Policy {
	normalized := make(map[string][]string, len(roles))
	for role, tables := range roles {
		normalized[strings.ToLower(role)] = normalizeTables(tables)
	}
	return &Policy{roles: normalized}
}

// Default returns the built-in development policy, mirroring the roles the
// server ships with when no policy file is configured.
func Default() *Policy {
	return New(map[string][]string{
		"analyst":  {"sales", "users", "orders"},
		"admin":    {Wildcard},
		"readonly": {"sales", "users"},
	})
}

// Resolve filters a catalog snapshot down to what the given role may see and
// returns, alongside it, the exact allowlist the validator must enforce. Both
// values are derived from the same filtered map, so the schema shown to the
// generator and the tables the validator permits cannot diverge. An unknown
// role yields an empty schema and an empty allowlist.
func (p *Policy) Resolve(role string, catalog map[string]model.Table) (map[string]model.Table, []string) {
	grants, ok := p.roles[strings.ToLower(role)]
	if !ok {
		return map[string]model.Table{}, nil
	}

	filtered := make(map[string]model.Table)
	if len(grants) == 1 && grants[0] == Wildcard {
		for name, t := range catalog {
			filtered[name] = t
		}
	} else {
		for _, name := range grants {
			if t, ok := catalog[name]; ok {
				filtered[name] = t
			}
		}
	}

	allowed := make([]string, 0, len(filtered))
	for name := range filtered {
		allowed = append(allowed, name)
	}
	sort.Strings(allowed)
	return filtered, allowed
}

// IsWildcard reports whether the role has unrestricted table access.
func (p *Policy) IsWildcard(role string) bool {
	grants, ok := p.roles[strings.ToLower(role)]
	return ok && len(grants) == 1 && grants[0] == Wildcard
}

// Roles returns the sorted list of known role names.
func (p *Policy) Roles() []string {
	names := make([]string, 0, len(p.roles))
	for r := range p.roles {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

func normalizeTables(tables []string) []string {
	out := make([]string, 0, len(tables))
	seen := make(map[string]bool)
	for _, t := range tables {
		lt := strings.ToLower(strings.TrimSpace(t))
		if lt == "" || seen[lt] {
			continue
		}
		seen[lt] = true
		out = append(out, lt)
	}
	return out
}
