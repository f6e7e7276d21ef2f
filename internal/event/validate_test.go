package event_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bakery/internal/event"
	"github.com/roach88/bakery/internal/testutil"
)

func TestVerify_Valid(t *testing.T) {
	evt := testutil.NewEvent("alice", 1, 1700000000, "hello")
	require.NoError(t, event.Verify(evt))
}

func TestVerify_TamperedContent(t *testing.T) {
	evt := testutil.NewEvent("alice", 1, 1700000000, "hello")
	evt.Content = "goodbye"

	err := event.Verify(evt)
	assert.ErrorIs(t, err, event.ErrIDMismatch)
}

func TestVerify_TamperedSignature(t *testing.T) {
	evt := testutil.NewEvent("alice", 1, 1700000000, "hello")
	other := testutil.NewEvent("bob", 1, 1700000000, "hello")
	evt.Sig = other.Sig

	err := event.Verify(evt)
	assert.ErrorIs(t, err, event.ErrBadSignature)
}

func TestCheckShape(t *testing.T) {
	evt := testutil.NewEvent("alice", 1, 1700000000, "hello")
	require.NoError(t, event.CheckShape(evt))

	bad := *evt
	bad.ID = "xyz"
	assert.ErrorIs(t, event.CheckShape(&bad), event.ErrMalformed)

	bad = *evt
	bad.PubKey = strings.Repeat("z", 64)
	assert.ErrorIs(t, event.CheckShape(&bad), event.ErrMalformed)

	bad = *evt
	bad.Tags = append(bad.Tags, []string{})
	assert.ErrorIs(t, event.CheckShape(&bad), event.ErrMalformed)
}
