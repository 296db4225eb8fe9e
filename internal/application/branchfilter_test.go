package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/internal/application"
)

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		name     string
		branch   string
		patterns []string
		want     bool
	}{
		{"exact match", "main", []string{"main"}, true},
		{"no match", "feature/login", []string{"main"}, false},
		{"wildcard prefix", "release/1.2", []string{"release/*"}, true},
		{"wildcard prefix only matches prefix", "hotfix/release", []string{"release/*"}, false},
		{"bare star matches everything", "anything", []string{"*"}, true},
		{"case sensitive", "Main", []string{"main"}, false},
		{"second pattern matches", "develop", []string{"main", "develop"}, true},
		{"empty pattern set", "main", nil, false},
		{"exact name with no wildcard is not a prefix", "mainline", []string{"main"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, application.IsExcluded(tt.branch, tt.patterns))
		})
	}
}
