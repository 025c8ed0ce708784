package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	assert.Equal(t, GenerateLockID("kb:document", "x"), GenerateLockID("kb:document", "x"))
	assert.NotEqual(t, GenerateLockID("ab", "c"), GenerateLockID("a", "bc"))
	assert.NotEqual(t, GenerateLockID(lockSpaceDocument), GenerateLockID(lockSpaceMigration))
}

func TestDocumentLockID(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	assert.Equal(t, DocumentLockID(a), DocumentLockID(a))
	assert.NotEqual(t, DocumentLockID(a), DocumentLockID(b))
	assert.NotEqual(t, DocumentLockID(a), GenerateLockID(lockSpaceMigration))
}
