package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// With a nil OpenAI client every call falls through to the deterministic
// keyword fallback, making these tests network-free.

func TestClassifyDataKeyword(t *testing.T) {
	r := New(nil, nil)
	isData, reply := r.Classify(context.Background(), "tenant-1", "how many leads do we have")
	assert.True(t, isData)
	assert.Empty(t, reply)
}

func TestClassifyGreeting(t *testing.T) {
	r := New(nil, nil)
	isData, reply := r.Classify(context.Background(), "tenant-1", "hello there")
	assert.False(t, isData)
	assert.Contains(t, reply, "HomeLead AI")
}

func TestClassifyUnknownDefaultsToChat(t *testing.T) {
	r := New(nil, nil)
	isData, reply := r.Classify(context.Background(), "tenant-1", "what a nice day")
	assert.False(t, isData)
	assert.NotEmpty(t, reply)
}

func TestClassifyFollowupAfterData(t *testing.T) {
	r := New(nil, nil)
	isData, _ := r.Classify(context.Background(), "tenant-1", "how many leads")
	assert.True(t, isData)

	isData, reply := r.Classify(context.Background(), "tenant-1", "what about")
	assert.True(t, isData)
	assert.Empty(t, reply)
}

func TestClassifyContextIsPerTenant(t *testing.T) {
	r := New(nil, nil)
	r.Classify(context.Background(), "tenant-a", "how many leads")

	// tenant-b has no data history, so the same short follow-up phrase
	// must not be treated as a data follow-up.
	isData, reply := r.Classify(context.Background(), "tenant-b", "what about")
	assert.False(t, isData)
	assert.NotEmpty(t, reply)
}
