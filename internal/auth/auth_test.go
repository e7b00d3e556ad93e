package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docvault/internal/apperr"
)

func TestFromHeaders(t *testing.T) {
	t.Run("parses identity and scopes", func(t *testing.T) {
		p, err := FromHeaders("user-1", "tenant-1", "documents:admin, documents:read")

		assert.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
		assert.Equal(t, "tenant-1", p.TenantID)
		assert.Equal(t, []string{"documents:admin", "documents:read"}, p.Scopes)
		assert.True(t, p.IsAdmin())
	})

	t.Run("empty scopes", func(t *testing.T) {
		p, err := FromHeaders("user-1", "tenant-1", "")

		assert.NoError(t, err)
		assert.Empty(t, p.Scopes)
		assert.False(t, p.IsAdmin())
	})

	t.Run("missing identity is denied", func(t *testing.T) {
		_, err := FromHeaders("", "tenant-1", "")
		assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))

		_, err = FromHeaders("user-1", "  ", "")
		assert.True(t, apperr.IsKind(err, apperr.KindPermissionDenied))
	})
}
