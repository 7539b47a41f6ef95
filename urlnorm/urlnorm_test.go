package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conversantai/retrieval-engine/urlnorm"
)

func TestKeyStripsTrackingParamsAndTrailingSlash(t *testing.T) {
	a := urlnorm.Key("https://Example.com:443/hotels/paris/?utm_source=newsletter&ref=abc")
	b := urlnorm.Key("https://example.com/hotels/paris")
	assert.Equal(t, b, a)
}

func TestKeyPreservesMeaningfulQuery(t *testing.T) {
	a := urlnorm.Key("https://example.com/search?q=paris")
	b := urlnorm.Key("https://example.com/search?q=london")
	assert.NotEqual(t, a, b)
}

func TestEqual(t *testing.T) {
	assert.True(t, urlnorm.Equal("http://example.com/a/", "http://example.com/a"))
	assert.False(t, urlnorm.Equal("http://example.com/a", "http://example.com/b"))
}

func TestKeyFallsBackOnUnparseableInput(t *testing.T) {
	assert.Equal(t, "not a url", urlnorm.Key("not a url"))
}
