package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistence(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Persistence(nil))
	})

	t.Run("wraps storage error", func(t *testing.T) {
		err := Persistence(sql.ErrConnDone)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), sql.ErrConnDone.Error())
	})

	t.Run("typed error passes through", func(t *testing.T) {
		err := Persistence(fmt.Errorf("ctx: %w", ErrRateLimited))
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.False(t, errors.Is(err, ErrPersistence))
	})

	t.Run("no double wrap", func(t *testing.T) {
		once := Persistence(sql.ErrTxDone)
		assert.Equal(t, once, Persistence(once))
	})
}

func TestError_Extensions(t *testing.T) {
	assert.Equal(t, "NOT_AUTHENTICATED", ErrNotAuthenticated.Extensions()["code"])
	assert.Equal(t, "Not authenticated", ErrNotAuthenticated.Error())
	assert.Equal(t, "BAD_USER_INPUT", Invalid("bad %s", "x").(*Error).Code)
}
