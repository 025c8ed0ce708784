package postgres

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordPattern(t *testing.T) {
	assert.Empty(t, wordPattern(nil))

	pattern := wordPattern([]string{"token", "a.b", ""})
	assert.Equal(t, `(^|[^0-9A-Za-zА-Яа-яЁё_])(token|a\.b)($|[^0-9A-Za-zА-Яа-яЁё_])`, pattern)

	// Go の正規表現でも同じ語境界として振る舞う
	re := regexp.MustCompile(pattern)
	assert.True(t, re.MatchString("the token is here"))
	assert.True(t, re.MatchString("a.b"))
	assert.False(t, re.MatchString("tokens"))
	assert.False(t, re.MatchString("axb"))
}

func TestRowLimit(t *testing.T) {
	assert.Equal(t, int32(defaultRowLimit), rowLimit(0))
	assert.Equal(t, int32(7), rowLimit(7))
}
