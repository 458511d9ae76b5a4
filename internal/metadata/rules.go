package metadata

import (
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
)

// Rule is a CEL boolean expression over the persisted values of an instance,
// bound to the variable "self". A rule that evaluates to false fails validation.
type Rule struct {
	Name    string `json:"name"`
	Expr    string `json:"expr"`
	Message string `json:"message,omitempty"`

	program cel.Program
}

var ruleEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("self", cel.MapType(cel.StringType, cel.DynType)))
})

// Rules returns validation rules in registration order.
func (c *ClassMetadata) Rules() []*Rule { return c.rules }

// RegisterRule compiles expr and attaches it to class.
func (r *Registry) RegisterRule(class, name, expr, message string) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if name == "" || expr == "" {
		return apperror.NewProgramming("%s: rule needs a name and an expression", class)
	}
	env, err := ruleEnv()
	if err != nil {
		return apperror.NewProgramming("rule environment: %v", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return apperror.NewProgramming("%s: rule %q does not compile: %v", class, name, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return apperror.NewProgramming("%s: rule %q must return bool, got %v", class, name, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return apperror.NewProgramming("%s: rule %q: %v", class, name, err)
	}
	c.rules = append(c.rules, &Rule{Name: name, Expr: expr, Message: message, program: prg})
	return nil
}

// Check evaluates the rule. A false result or an evaluation failure is a
// validation error naming the rule.
func (rule *Rule) Check(class string, values map[string]any) error {
	self := make(map[string]any, len(values))
	for k, v := range values {
		self[k] = celValue(v)
	}
	out, _, err := rule.program.Eval(map[string]any{"self": self})
	if err != nil {
		return rule.failure(class).WithCause(err)
	}
	if ok, _ := out.Value().(bool); !ok {
		return rule.failure(class)
	}
	return nil
}

func (rule *Rule) failure(class string) *apperror.AppError {
	msg := rule.Message
	if msg == "" {
		msg = class + " violates rule " + rule.Name
	}
	return apperror.NewValidation(msg).
		WithDetail("class", class).
		WithDetail("rule", rule.Name)
}

// celValue converts engine types into values CEL understands natively.
func celValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.InexactFloat64()
	case id.ID:
		return t.String()
	case *id.ID:
		if t == nil {
			return nil
		}
		return t.String()
	case time.Time:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}
