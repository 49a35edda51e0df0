package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConstructorsKeepCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Conflict("run exists", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusConflict, StatusOf(err))
	require.Equal(t, "[CONFLICT] run exists: duplicate key", err.Error())
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, CoreStatus(""), StatusOf(nil))
	require.Equal(t, StatusInternal, StatusOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", NotFound("user 1 not found", nil))
	require.True(t, Is(wrapped, StatusNotFound))
	require.False(t, Is(wrapped, StatusConflict))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusUnprocessableEntity, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusConflict, StatusConflict.HTTPStatus())
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, StatusInternal.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("???").HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	st, ok := status.FromError(ToGRPCError(ValidationFailed("bad date", errors.New("parse"))))
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())
	require.Equal(t, "bad date", st.Message())

	st, _ = status.FromError(ToGRPCError(context.Canceled))
	require.Equal(t, codes.Canceled, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	require.Equal(t, codes.Internal, st.Code())
}
