package gwerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromPassesThroughClassified(t *testing.T) {
	orig := AuthRevoked()
	wrapped := fmt.Errorf("resolve: %w", orig)
	require.Same(t, orig, From(wrapped))
}

func TestFromBucketsStoreFailures(t *testing.T) {
	cases := map[string]string{
		"pgx pool exhausted":                 BucketDatabase,
		"ERROR: relation missing (SQLSTATE)": BucketDatabase,
		"redis: connection refused":          BucketCache,
		"s3 endpoint unreachable":            BucketStorage,
	}
	for msg, bucket := range cases {
		ge := From(errors.New(msg))
		require.Equal(t, CodeStoreUnavailable, ge.Code, msg)
		require.Equal(t, bucket, ge.Bucket, msg)
		// internal cause never reaches the wire message
		require.Equal(t, "a dependent service is unavailable", ge.Message)
	}
}

func TestFromUnknownIsInternal(t *testing.T) {
	ge := From(errors.New("something odd"))
	require.Equal(t, CodeInternal, ge.Code)
	require.Equal(t, http.StatusInternalServerError, ge.Status)
}

func TestFromPanicNeverPanics(t *testing.T) {
	for _, v := range []any{nil, "boom", 42, errors.New("x"), AuthRequired()} {
		require.NotPanics(t, func() {
			ge := FromPanic(v)
			require.NotNil(t, ge)
		})
	}
}

func TestEnvelopeShape(t *testing.T) {
	env := RateLimited(30).Envelope("req-9")
	require.Equal(t, "Too Many Requests", env.Error)
	require.Equal(t, CodeRateLimited, env.Code)
	require.Equal(t, "req-9", env.RequestID)
	require.Equal(t, map[string]int{"retryAfter": 30}, env.Details)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	ge := Internal(cause)
	require.ErrorIs(t, ge, cause)
}
