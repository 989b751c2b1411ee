package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubSamePromptSameResponse(t *testing.T) {
	s := NewStub()
	ctx := context.Background()
	r1, err := s.Complete(ctx, Request{Prompt: "grade this"})
	require.NoError(t, err)
	r2, err := s.Complete(ctx, Request{Prompt: "grade this"})
	require.NoError(t, err)
	require.Equal(t, r1.Content, r2.Content)
}

func TestStubDifferentPromptDifferentResponse(t *testing.T) {
	s := NewStub()
	ctx := context.Background()
	r1, err := s.Complete(ctx, Request{Prompt: "prompt a"})
	require.NoError(t, err)
	r2, err := s.Complete(ctx, Request{Prompt: "prompt b"})
	require.NoError(t, err)
	require.NotEqual(t, r1.Content, r2.Content)
}

func TestStubLogprobsOmittedUnlessRequested(t *testing.T) {
	s := NewStub()
	r, err := s.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	require.Nil(t, r.Logprobs)
}

func TestStubLogprobsPopulatedWhenRequested(t *testing.T) {
	s := NewStub()
	r, err := s.Complete(context.Background(), Request{Prompt: "x", Logprobs: true})
	require.NoError(t, err)
	require.Len(t, r.Logprobs, 1)
	require.NotEmpty(t, r.Logprobs[0].Alternates)
}
