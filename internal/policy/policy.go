// Package policy decides whether an actor may perform a governed
// action on a set of datasets. Evaluation is a pure function of the
// request and the loaded ruleset: every request yields a decision,
// never an error, so callers always branch on Allowed.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	dErrors "ista/pkg/domain-errors"
)

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Wildcard matches any role, action or dataset in a rule.
const Wildcard = "*"

// Rule grants or denies one (role, action, resource) combination. A
// trailing '*' in the dataset predicate matches by prefix.
type Rule struct {
	Role    string `yaml:"role"`
	Action  string `yaml:"action"`
	Dataset string `yaml:"dataset"`
	Effect  Effect `yaml:"effect"`
}

// Request carries the actor's identity and everything the rules can
// predicate on. Role membership is resolved by the caller, typically
// from the authenticated token.
type Request struct {
	Actor    string
	Roles    []string
	Action   string
	Datasets []string
}

// Decision is the outcome of evaluating one request. Reasons name
// every deny that contributed, including default denies, so audit
// entries can explain the decision without re-running it.
type Decision struct {
	Allowed bool
	Reasons []string
}

type Engine struct {
	rules []Rule
}

// New validates the ruleset once so evaluation never has to.
func New(rules []Rule) (*Engine, error) {
	for i, r := range rules {
		if r.Role == "" || r.Action == "" || r.Dataset == "" {
			return nil, dErrors.Newf(dErrors.CodeSpecInvalid,
				"policy rule %d: role, action and dataset are required", i)
		}
		if r.Effect != EffectAllow && r.Effect != EffectDeny {
			return nil, dErrors.Newf(dErrors.CodeSpecInvalid,
				"policy rule %d: effect must be allow or deny, got %q", i, r.Effect)
		}
	}
	return &Engine{rules: rules}, nil
}

// LoadFile reads a YAML ruleset of the form:
//
//	rules:
//	  - role: data-engineer
//	    action: provision
//	    dataset: "*"
//	    effect: allow
func LoadFile(path string) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSpecNotFound, "read policy file")
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSpecInvalid, "parse policy file")
	}
	return New(doc.Rules)
}

// Evaluate applies deny-overrides-allow per dataset and default-deny
// for datasets no allow rule covers. The request is allowed only when
// every dataset it names is allowed.
func (e *Engine) Evaluate(req Request) Decision {
	datasets := req.Datasets
	if len(datasets) == 0 {
		// Actions like audit queries carry no dataset; evaluate the
		// action itself against a synthetic wildcard resource.
		datasets = []string{Wildcard}
	}

	reasons := []string{}
	allowed := true
	for _, dataset := range datasets {
		denied, allowedHere := false, false
		for _, r := range e.rules {
			if !r.matches(req, dataset) {
				continue
			}
			switch r.Effect {
			case EffectDeny:
				denied = true
				reasons = append(reasons, fmt.Sprintf(
					"deny rule matched: role=%s action=%s dataset=%s", r.Role, r.Action, r.Dataset))
			case EffectAllow:
				allowedHere = true
			}
		}
		if denied {
			allowed = false
			continue
		}
		if !allowedHere {
			allowed = false
			reasons = append(reasons, fmt.Sprintf(
				"no allow rule matches actor %s for action %s on dataset %s", req.Actor, req.Action, dataset))
		}
	}
	sort.Strings(reasons)
	return Decision{Allowed: allowed, Reasons: reasons}
}

func (r Rule) matches(req Request, dataset string) bool {
	if r.Action != Wildcard && r.Action != req.Action {
		return false
	}
	if !matchDataset(r.Dataset, dataset) {
		return false
	}
	if r.Role == Wildcard {
		return true
	}
	for _, role := range req.Roles {
		if role == r.Role {
			return true
		}
	}
	return false
}

func matchDataset(pattern, dataset string) bool {
	if pattern == Wildcard || pattern == dataset {
		return true
	}
	if dataset == Wildcard {
		// Dataset-free requests only match wildcard rules.
		return false
	}
	if strings.HasSuffix(pattern, Wildcard) {
		return strings.HasPrefix(dataset, strings.TrimSuffix(pattern, Wildcard))
	}
	return false
}
