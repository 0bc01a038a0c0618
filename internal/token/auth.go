package token

import (
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

// Authorizer decides which tokens a caller may use.
type Authorizer interface {
	// IsAllowed returns "" when t may be used, or the reason it may not.
	IsAllowed(t Token) string
}

// AllowAll permits every token.
type AllowAll struct{}

func (AllowAll) IsAllowed(Token) string { return "" }

// Effects a Rule may carry.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Rule grants or denies a role access to the tokens matching Object.
//
// Object is "<query>:<full key>" and may end in "*" to cover a whole
// subtree: "Orders:*", "Orders:Customer.*". A deny beats any allow.
type Rule struct {
	Role   string `toml:"role" yaml:"role"`
	Object string `toml:"object" yaml:"object"`
	Effect string `toml:"effect" yaml:"effect"`
}

const tokenModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj, eft

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj)
`

// CasbinAuthorizer checks tokens against role-based casbin policies.
// Tokens matching no allow rule are denied.
type CasbinAuthorizer struct {
	enforcer *casbin.Enforcer
	role     string
}

// NewCasbinAuthorizer builds an authorizer evaluating rules for role.
// inherits lists (role, parent role) pairs.
func NewCasbinAuthorizer(role string, rules []Rule, inherits ...[2]string) (*CasbinAuthorizer, error) {
	m, err := model.NewModelFromString(tokenModel)
	if err != nil {
		return nil, fmt.Errorf("authorization model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authorization enforcer: %w", err)
	}
	for i, r := range rules {
		effect := r.Effect
		if effect == "" {
			effect = EffectAllow
		}
		if effect != EffectAllow && effect != EffectDeny {
			return nil, fmt.Errorf("authorization rule %d: unknown effect %q", i, r.Effect)
		}
		if r.Role == "" || r.Object == "" {
			return nil, fmt.Errorf("authorization rule %d: role and object are required", i)
		}
		if _, err := e.AddPolicy(r.Role, r.Object, effect); err != nil {
			return nil, fmt.Errorf("authorization rule %d: %w", i, err)
		}
	}
	for _, pair := range inherits {
		if _, err := e.AddGroupingPolicy(pair[0], pair[1]); err != nil {
			return nil, fmt.Errorf("authorization role %s: %w", pair[0], err)
		}
	}
	return &CasbinAuthorizer{enforcer: e, role: role}, nil
}

// Object returns the policy object of t.
func Object(t Token) string {
	return t.QueryName() + ":" + t.FullKey()
}

func (a *CasbinAuthorizer) IsAllowed(t Token) string {
	obj := Object(t)
	ok, err := a.enforcer.Enforce(a.role, obj)
	if err != nil {
		slog.Warn("authorization check failed", "role", a.role, "object", obj, "error", err)
		return fmt.Sprintf("authorization check failed: %v", err)
	}
	if !ok {
		return fmt.Sprintf("role %q may not use %s", a.role, obj)
	}
	return ""
}
