package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	got := DedupeAndTrim([]string{"  b@x.com ", "a@x.com", "b@x.com", "", "  "})
	assert.Equal(t, []string{"b@x.com", "a@x.com"}, got)
	assert.Empty(t, DedupeAndTrim(nil))
}

func TestWithout(t *testing.T) {
	got := Without([]string{"A@x.com", "b@x.com", "a@x.com"}, "a@X.com")
	assert.Equal(t, []string{"b@x.com"}, got)
	assert.Empty(t, Without(nil, "a@x.com"))
}

func TestDedupeEmails(t *testing.T) {
	got := DedupeEmails([]string{"Owner@X.io", " b@x.io", "owner@x.io", "", "B@x.io "})
	assert.Equal(t, []string{"owner@x.io", "b@x.io"}, got)
	assert.Empty(t, DedupeEmails(nil))
	assert.Equal(t, "a@x.io", NormalizeEmail("  A@X.io "))
}
