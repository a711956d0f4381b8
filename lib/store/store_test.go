package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeValid(t *testing.T) {
	for _, dt := range []DataType{
		DataTypePersistent, DataTypeTransient, DataTypeCached,
		DataTypeVersioned, DataTypeShared, DataTypeLocked,
	} {
		assert.True(t, dt.Valid(), "%s must be valid", dt)
	}
	assert.False(t, DataType("").Valid())
	assert.False(t, DataType("bogus").Valid())
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()

	e := &Entry{Meta: Metadata{}}
	assert.False(t, e.Expired(now), "zero ExpiresAt means no expiration")

	e.Meta.ExpiresAt = now.Add(time.Second)
	assert.False(t, e.Expired(now))

	e.Meta.ExpiresAt = now
	assert.True(t, e.Expired(now), "expiration is inclusive")

	e.Meta.ExpiresAt = now.Add(-time.Second)
	assert.True(t, e.Expired(now))
}

func TestEntryClone(t *testing.T) {
	e := &Entry{Key: "k", Value: []byte("abc"), Version: 2}
	cp := e.Clone()

	cp.Value[0] = 'X'
	cp.Version = 3

	assert.Equal(t, []byte("abc"), e.Value, "clone must not share the value buffer")
	assert.Equal(t, uint64(2), e.Version)
}

func TestFilterMatchMeta(t *testing.T) {
	e := &Entry{
		Namespace: "task_results",
		DataType:  DataTypeCached,
		Meta:      Metadata{Owner: "w1"},
	}

	assert.True(t, Filter{}.MatchMeta(e))
	assert.True(t, Filter{}.Empty())
	assert.True(t, Filter{Namespace: "task_results"}.MatchMeta(e))
	assert.True(t, Filter{Namespace: "task_results", DataType: DataTypeCached, Owner: "w1"}.MatchMeta(e))

	assert.False(t, Filter{Namespace: "other"}.MatchMeta(e))
	assert.False(t, Filter{DataType: DataTypePersistent}.MatchMeta(e))
	assert.False(t, Filter{Owner: "w2"}.MatchMeta(e))
	assert.False(t, Filter{Pattern: "x"}.Empty())
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(CodeConflict, "k", "lock held by %q", "a1")
	assert.Contains(t, err.Error(), "Conflict")
	assert.Contains(t, err.Error(), `key "k"`)
	assert.Contains(t, err.Error(), `lock held by "a1"`)

	cause := fmt.Errorf("disk full")
	wrapped := WrapError(CodeBackendUnavailable, "", cause, "write failed")
	assert.Contains(t, wrapped.Error(), "disk full")
	assert.True(t, errors.Is(wrapped, cause))
}

func TestErrorPredicates(t *testing.T) {
	err := NewError(CodeTimeout, "k", "deadline")
	assert.True(t, IsTimeout(err))
	assert.True(t, IsCode(err, CodeTimeout))
	assert.False(t, IsConflict(err))

	// predicates see through wrapping
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsTimeout(wrapped))

	assert.False(t, IsTimeout(fmt.Errorf("plain")))
	assert.False(t, IsTimeout(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewError(CodeConflict, "", "")))
	assert.True(t, Retryable(NewError(CodeBackendUnavailable, "", "")))
	assert.True(t, Retryable(NewError(CodeTimeout, "", "")))

	assert.False(t, Retryable(NewError(CodeValidation, "", "")))
	assert.False(t, Retryable(NewError(CodePermission, "", "")))
	assert.False(t, Retryable(NewError(CodeResourceExhausted, "", "")))
	assert.False(t, Retryable(errors.New("untyped")))
	assert.False(t, Retryable(nil))
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "Validation", CodeValidation.String())
	require.Equal(t, "Unknown", Code(200).String())
}
