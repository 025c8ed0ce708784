package idempotency

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	records map[string]*Record
	err     error
}

func (s *stubStore) GetRecord(_ context.Context, key string) (mo.Option[*Record], error) {
	if s.err != nil {
		return mo.None[*Record](), s.err
	}
	if rec, ok := s.records[key]; ok {
		return mo.Some(rec), nil
	}
	return mo.None[*Record](), nil
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "そのまま", raw: "K1", want: "K1"},
		{name: "前後の空白を除去", raw: "  smoke-idem-1 ", want: "smoke-idem-1"},
		{name: "許可外の文字を置換", raw: "order #42/retry", want: "order-42-retry"},
		{name: "連続する許可外の文字は1つに", raw: "a!!!b", want: "a-b"},
		{name: "空", raw: "   ", want: ""},
		{name: "長すぎるキーを切り詰め", raw: strings.Repeat("x", 200), want: strings.Repeat("x", MaxKeyLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.raw))
		})
	}
}

func TestFingerprint_StableAcrossMapOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"question": "q", "top_k": 5, "document_id": nil})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"document_id": nil, "top_k": 5, "question": "q"})
	require.NoError(t, err)
	c, err := Fingerprint(map[string]any{"question": "q", "top_k": 2, "document_id": nil})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCoordinator_Lookup(t *testing.T) {
	runID := uuid.New()
	store := &stubStore{records: map[string]*Record{
		"K1": {Key: "K1", Fingerprint: "fp-1", RunID: mo.Some(runID)},
	}}
	coord := NewCoordinator(store)

	t.Run("未使用のキーは新規実行", func(t *testing.T) {
		d, err := coord.Lookup(context.Background(), "K2", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeFresh, d.Outcome)
	})

	t.Run("同じ指紋は再生", func(t *testing.T) {
		d, err := coord.Lookup(context.Background(), "K1", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeReplay, d.Outcome)
		assert.Equal(t, runID, d.Record.RunID.MustGet())
	})

	t.Run("異なる指紋は衝突", func(t *testing.T) {
		_, err := coord.Lookup(context.Background(), "K1", "fp-2")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConflict))
		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "K1", conflict.Key)
	})
}

func TestCoordinator_ResolveTaken(t *testing.T) {
	store := &stubStore{records: map[string]*Record{
		"K1": {Key: "K1", Fingerprint: "fp-1"},
	}}
	coord := NewCoordinator(store)

	d, err := coord.ResolveTaken(context.Background(), "K1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, d.Outcome)

	_, err = coord.ResolveTaken(context.Background(), "K1", "fp-other")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = coord.ResolveTaken(context.Background(), "missing", "fp-1")
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestCoordinator_LookupPropagatesStoreError(t *testing.T) {
	coord := NewCoordinator(&stubStore{err: errors.New("db down")})

	_, err := coord.Lookup(context.Background(), "K1", "fp")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
