package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsVersion7AndOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, 7, int(a.Version()))
	assert.NotEqual(t, a, b)
	assert.False(t, IsNil(a))
}

func TestFromValue(t *testing.T) {
	want := MustParse("0190f1c2-7d7a-7c3e-9a51-7e3b1f4e2a10")
	ptr := want

	tests := []struct {
		name string
		in   any
		want ID
	}{
		{"id", want, want},
		{"pointer", &ptr, want},
		{"string", want.String(), want},
		{"bytes", want[:], want},
		{"array", [16]byte(want), want},
		{"nil", nil, Nil()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromValue(42)
	assert.Error(t, err)
}
