package database_test

import (
	"testing"

	"github.com/jinford/cv-extract/internal/platform/database"
	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	a := database.GenerateLockID("cv_record", "doc-1")

	assert.Equal(t, a, database.GenerateLockID("cv_record", "doc-1"))
	assert.NotEqual(t, a, database.GenerateLockID("cv_record", "doc-2"))
	assert.NotEqual(t, database.GenerateLockID("ab", "c"), database.GenerateLockID("a", "bc"))
}
