package mnemo_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnemo-ai/mnemo"
)

func TestErrorFormatting(t *testing.T) {
	err := &mnemo.Error{
		Op:   "SemanticStore.Update",
		Kind: mnemo.KindNotFound,
		Err:  mnemo.ErrNotFound,
	}
	assert.Contains(t, err.Error(), "SemanticStore.Update")
	assert.Contains(t, err.Error(), mnemo.KindNotFound)

	withCtx := err.WithContext(map[string]any{"entry_id": "abc"})
	assert.Contains(t, withCtx.Error(), "entry_id")
	assert.Empty(t, err.Context, "WithContext copies, never mutates")
}

func TestErrorUnwrapping(t *testing.T) {
	base := fmt.Errorf("dial tcp: connection refused")
	err := mnemo.NewUnavailableError("Pool.Get", fmt.Errorf("%w: %v", mnemo.ErrStoreUnavailable, base))

	assert.ErrorIs(t, err, mnemo.ErrStoreUnavailable)

	var structured *mnemo.Error
	assert.ErrorAs(t, err, &structured)
	assert.Equal(t, mnemo.KindUnavailable, structured.Kind)
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := mnemo.NewUpstreamError("LLM.Complete", errors.New("rate limited"))

	assert.ErrorIs(t, err, &mnemo.Error{Kind: mnemo.KindUpstream})
	assert.NotErrorIs(t, err, &mnemo.Error{Kind: mnemo.KindNotFound})
	assert.ErrorIs(t, err, &mnemo.Error{Kind: mnemo.KindUpstream, Op: "LLM.Complete"})
	assert.NotErrorIs(t, err, &mnemo.Error{Kind: mnemo.KindUpstream, Op: "Other.Op"})
}
