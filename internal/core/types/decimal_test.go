package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyFromValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"decimal", MustMoney("10.25"), "10.25"},
		{"string", "1500.10", "1500.1"},
		{"json number", json.Number("99.99"), "99.99"},
		{"int", 7, "7"},
		{"nil", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MoneyFromValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := MoneyFromValue(struct{}{})
	assert.Error(t, err)
}
