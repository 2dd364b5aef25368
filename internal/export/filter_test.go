package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_IsSensitive_DefaultPatterns(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "dotenv at root", path: ".env", expected: true},
		{name: "dotenv variant", path: ".env.production", expected: true},
		{name: "dotenv nested", path: "deploy/.env.local", expected: true},
		{name: "key file", path: "certs/server.key", expected: true},
		{name: "pem file", path: "certs/ca.pem", expected: true},
		{name: "secret in filename", path: "config/api_secret.json", expected: true},
		{name: "node_modules subtree", path: "node_modules/left-pad/index.js", expected: true},
		{name: "git internals", path: ".git/HEAD", expected: true},
		{name: "ordinary source file", path: "internal/server/handler.go", expected: false},
		{name: "readme", path: "README.md", expected: false},
	}

	f := NewFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.IsSensitive(tt.path))
		})
	}
}

func TestFilter_IsSensitive_AdditionalPatterns(t *testing.T) {
	f := NewFilter("**/internal-only/**", "*.private")
	assert.True(t, f.IsSensitive("docs/internal-only/roadmap.md"))
	assert.True(t, f.IsSensitive("notes.private"))
	assert.False(t, f.IsSensitive("docs/public/roadmap.md"))
}

func TestFilter_Patterns_IncludesDefaultsAndAdditions(t *testing.T) {
	f := NewFilter("*.custom")
	patterns := f.Patterns()
	assert.Contains(t, patterns, "*.custom")
	assert.Contains(t, patterns, ".env*")
}
