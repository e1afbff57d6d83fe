package catalog

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// defaultOfficialPrefixes are the identifier prefixes admitted regardless
// of the community-allowed flag or allow-list (§4.2 policy filter).
var defaultOfficialPrefixes = []string{"pkg-base.", "@org/langchain.", "pkg-langchain."}

// blockedPrefixAlternatives is the static mapping of a blocked package
// prefix to the officially supported identifiers that cover the same
// ground, surfaced as suggestions on a NODE_NOT_ALLOWED rejection.
var blockedPrefixAlternatives = map[string][]string{
	"community-pkg.": {"pkg-base.httpRequest", "pkg-base.function", "pkg-base.code"},
	"3rd-party.":     {"pkg-base.httpRequest", "pkg-base.webhook"},
}

// PolicyDecision is the verdict the Node Restriction filter returns for a
// single node-type identifier.
type PolicyDecision struct {
	Allowed     bool
	Reason      string
	Suggestions []string
}

// Policy implements the Node Restriction filter (§4.2, Layer 0). Beyond
// the spec's static rules (official prefixes, community flag, allow-list)
// it supports an optional operator-supplied expr-lang predicate evaluated
// against a small node-type environment, for restrictions the static
// rules can't express (e.g. tenant-scoped prefixes).
type Policy struct {
	OfficialPrefixes []string
	CommunityAllowed bool
	AllowList        map[string]bool
	CustomRule       string

	compiledRule *vm.Program
}

// NewPolicy builds a Policy from configuration. An invalid CustomRule
// expression is reported once at construction time; the filter then
// behaves as if no custom rule were configured rather than failing every
// lookup.
func NewPolicy(officialPrefixes []string, communityAllowed bool, allowList []string, customRule string) (*Policy, error) {
	if len(officialPrefixes) == 0 {
		officialPrefixes = defaultOfficialPrefixes
	}
	al := make(map[string]bool, len(allowList))
	for _, id := range allowList {
		al[id] = true
	}
	p := &Policy{
		OfficialPrefixes: officialPrefixes,
		CommunityAllowed: communityAllowed,
		AllowList:        al,
		CustomRule:       customRule,
	}
	if customRule != "" {
		prog, err := expr.Compile(customRule, expr.Env(policyEnv{}), expr.AsBool())
		if err != nil {
			return p, fmt.Errorf("compile custom policy rule: %w", err)
		}
		p.compiledRule = prog
	}
	return p, nil
}

// policyEnv is the environment exposed to a custom expr-lang policy rule.
type policyEnv struct {
	TypeID string `expr:"typeID"`
}

// Evaluate decides whether typeID is admissible.
func (p *Policy) Evaluate(typeID string) PolicyDecision {
	for _, prefix := range p.OfficialPrefixes {
		if strings.HasPrefix(typeID, prefix) {
			return PolicyDecision{Allowed: true}
		}
	}
	if p.CommunityAllowed {
		return PolicyDecision{Allowed: true}
	}
	if p.AllowList[typeID] {
		return PolicyDecision{Allowed: true}
	}
	if p.compiledRule != nil {
		out, err := expr.Run(p.compiledRule, policyEnv{TypeID: typeID})
		if err == nil {
			if allowed, ok := out.(bool); ok && allowed {
				return PolicyDecision{Allowed: true}
			}
		}
	}

	return PolicyDecision{
		Allowed:     false,
		Reason:      fmt.Sprintf("node type %q is not under an official prefix, not community-allowed, and not in the allow-list", typeID),
		Suggestions: suggestionsFor(typeID),
	}
}

func suggestionsFor(typeID string) []string {
	for prefix, alts := range blockedPrefixAlternatives {
		if strings.HasPrefix(typeID, prefix) {
			return alts
		}
	}
	return nil
}
