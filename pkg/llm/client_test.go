package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
}

func (f *fakeProvider) GetResponse(_ context.Context, _ []Turn, _ string, onChunk func(string)) (string, error) {
	if onChunk != nil {
		onChunk(f.reply)
	}
	return f.reply, nil
}

func TestClientAppendsBothSidesOfTurn(t *testing.T) {
	c := NewClient(&fakeProvider{reply: "hello there"}, 20, 5)

	reply, err := c.GetResponse(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestClientSummarizesPastThreshold(t *testing.T) {
	c := NewClient(&fakeProvider{reply: "ok"}, 4, 2)

	for i := 0; i < 5; i++ {
		_, err := c.GetResponse(context.Background(), "turn", nil)
		require.NoError(t, err)
	}

	history := c.History()
	assert.LessOrEqual(t, len(history), 4+1, "summarization should cap retained history")
	assert.Equal(t, "assistant", history[0].Role)
}

func TestClientBindPublishesSummaryToRegistry(t *testing.T) {
	c := NewClient(&fakeProvider{reply: "ok"}, 4, 2)
	reg := NewRegistry()
	c.Bind(reg, "call-42")

	for i := 0; i < 5; i++ {
		_, err := c.GetResponse(context.Background(), "turn", nil)
		require.NoError(t, err)
	}

	note, ok := reg.Get("call-42")
	require.True(t, ok, "expected a summarization note to reach the registry")
	assert.Contains(t, note, "Earlier in this call")

	c.Forget()
	_, ok = reg.Get("call-42")
	assert.False(t, ok, "Forget should drop the call's entry")
}

func TestRegistryTracksPerCallNotes(t *testing.T) {
	reg := NewRegistry()
	reg.Put("call-1", "note-a")

	note, ok := reg.Get("call-1")
	assert.True(t, ok)
	assert.Equal(t, "note-a", note)

	reg.Remove("call-1")
	_, ok = reg.Get("call-1")
	assert.False(t, ok)
}
