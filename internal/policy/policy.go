// Package policy gates sensitive admin actions (lead conversion, invitation
// send) behind a rego module. With no policy file configured everything is
// allowed; a rego evaluation error blocks the action.
package policy

import (
	"context"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

type Status string

const (
	Allow   Status = "ALLOW"
	Blocked Status = "BLOCKED"
)

type Decision struct {
	Status  Status
	Reasons []string
}

type Gate struct {
	module string
	log    *zap.SugaredLogger
}

// NewGate loads and validates the rego module at path. Empty path means
// default-allow. The entrypoint is `data.idgate.decide`.
func NewGate(ctx context.Context, path string, log *zap.SugaredLogger) (*Gate, error) {
	g := &Gate{log: log}
	if path == "" {
		return g, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mod := string(b)
	if _, err := rego.New(
		rego.Query("data.idgate.decide"),
		rego.Module("idgate.rego", mod),
	).PrepareForEval(ctx); err != nil {
		return nil, err
	}
	g.module = mod
	return g, nil
}

// Evaluate runs the policy for one action. Fail-closed on rego errors.
func (g *Gate) Evaluate(ctx context.Context, action string, input map[string]any) Decision {
	if g == nil || g.module == "" {
		return Decision{Status: Allow}
	}
	r := rego.New(
		rego.Query("data.idgate.decide"),
		rego.Module("idgate.rego", g.module),
		rego.Input(map[string]any{"action": action, "input": input}),
	)
	rs, err := r.Eval(ctx)
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		g.log.Warnw("policy evaluation failed", "action", action, "err", err)
		return Decision{Status: Blocked, Reasons: []string{"policy_error"}}
	}
	out := rs[0].Expressions[0].Value
	m, ok := out.(map[string]any)
	if !ok {
		// Bare boolean entrypoints are accepted too.
		if b, ok := out.(bool); ok && b {
			return Decision{Status: Allow}
		}
		return Decision{Status: Blocked, Reasons: []string{"policy_malformed"}}
	}
	dec := Decision{Status: Blocked}
	if s, ok := m["status"].(string); ok && s == string(Allow) {
		dec.Status = Allow
	}
	if rs, ok := m["reasons"].([]any); ok {
		for _, v := range rs {
			if s, ok := v.(string); ok {
				dec.Reasons = append(dec.Reasons, s)
			}
		}
	}
	return dec
}
