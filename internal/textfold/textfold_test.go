package textfold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Déjeuner", "dejeuner"},
		{"DÉJEUNER", "dejeuner"},
		{"  Petit-Déjeuner ", "petit-dejeuner"},
		{"Dîner", "diner"},
		{"petit   dej", "petit dej"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestEqualAndContains(t *testing.T) {
	assert.True(t, Equal("Dîner", "DINER"))
	assert.False(t, Equal("Dîner", "Déjeuner"))

	assert.True(t, Contains("Petit-déjeuner", "DÉJEUNER"))
	assert.True(t, Contains("Déjeuner", "dejeuner"))
	assert.False(t, Contains("Dîner", "souper"))
	assert.False(t, Contains("Dîner", "  "))
}
