package metadata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
)

func TestRegisterRule_CompileErrors(t *testing.T) {
	reg := NewRegistry()

	assert.True(t, apperror.IsProgrammingError(reg.RegisterRule("Account", "broken", "self.cash >", "")))
	assert.True(t, apperror.IsProgrammingError(reg.RegisterRule("Account", "not bool", "'text'", "")))
	assert.True(t, apperror.IsProgrammingError(reg.RegisterRule("Account", "", "true", "")))
	assert.Empty(t, reg.MustGet("Account").Rules())
}

func TestRule_Check(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRule("Account", "non-negative cash", "self.cash >= 0.0", "cash cannot be negative"))
	require.NoError(t, reg.RegisterRule("Account", "named", "has(self.name) && self.name != ''", ""))

	rules := reg.MustGet("Account").Rules()
	require.Len(t, rules, 2)

	ok := map[string]any{"cash": decimal.RequireFromString("10.50"), "name": "Brokerage"}
	for _, r := range rules {
		assert.NoError(t, r.Check("Account", ok))
	}

	err := rules[0].Check("Account", map[string]any{"cash": decimal.RequireFromString("-1")})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "cash cannot be negative", appErr.Message)
	assert.Equal(t, "non-negative cash", appErr.Details["rule"])

	err = rules[1].Check("Account", map[string]any{"cash": 1})
	assert.True(t, apperror.IsValidation(err))
}
