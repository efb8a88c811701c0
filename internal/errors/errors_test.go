package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "alert not found", NotFound("alert not found").Error())

	wrapped := Wrap(errors.New("conn refused"), ErrCodeStorage, "query alerts")
	assert.Equal(t, "query alerts: conn refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, ErrCodeStorage, "wrapped")

	assert.ErrorIs(t, err, cause)
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
	}{
		{NotFound("x"), IsNotFound},
		{Validation("x"), IsValidation},
		{InvalidTransition("x"), IsInvalidTransition},
		{Storage("x"), IsStorage},
		{Delivery("x"), IsDelivery},
	}

	for _, tc := range cases {
		assert.True(t, tc.pred(tc.err))
		assert.True(t, tc.pred(fmt.Errorf("outer: %w", tc.err)), "predicates see through wrapping")
	}

	assert.False(t, IsNotFound(Validation("x")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidTransition, GetCode(InvalidTransition("x")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
}

func TestGetField(t *testing.T) {
	assert.Equal(t, "alert_id", GetField(ValidationField("alert_id", "required")))
	assert.Empty(t, GetField(Validation("no field")))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeStorage, "ignored"))
}

func TestMapDBError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("no rows becomes not found", func(t *testing.T) {
		err := MapDBError(pgx.ErrNoRows)
		assert.True(t, IsNotFound(err))
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("deadline becomes storage", func(t *testing.T) {
		err := MapDBError(fmt.Errorf("query: %w", context.DeadlineExceeded))
		assert.True(t, IsStorage(err))
	})

	t.Run("constraint violations become validation", func(t *testing.T) {
		for _, code := range []string{
			pgerrcode.UniqueViolation,
			pgerrcode.CheckViolation,
			pgerrcode.NotNullViolation,
			pgerrcode.ForeignKeyViolation,
		} {
			err := MapDBError(&pgconn.PgError{Code: code, ColumnName: "severity"})
			require.True(t, IsValidation(err), code)
			assert.Equal(t, "severity", GetField(err))
		}
	})

	t.Run("connection failures become storage", func(t *testing.T) {
		err := MapDBError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})
		assert.True(t, IsStorage(err))
	})

	t.Run("other pg errors default to storage", func(t *testing.T) {
		err := MapDBError(&pgconn.PgError{Code: pgerrcode.SyntaxError})
		assert.True(t, IsStorage(err))
	})

	t.Run("unrecognized errors pass through unchanged", func(t *testing.T) {
		plain := errors.New("not a db error")
		assert.Equal(t, plain, MapDBError(plain))
	})
}
