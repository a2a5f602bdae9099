package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePersistenceProvider(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"postgres://u:p@localhost/db":   "postgresql",
		"postgresql://u:p@localhost/db": "postgresql",
		"file:///var/lib/flowrun":       "file",
		"./data":                        "file",
		"mysql://localhost":             "file",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}
