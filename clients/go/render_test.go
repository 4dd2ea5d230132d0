package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eldtechnologies/globalchat/clients/go/globalchat"
)

func history(from, to int) []globalchat.Message {
	msgs := make([]globalchat.Message, 0, to-from)
	for i := from; i < to; i++ {
		msgs = append(msgs, globalchat.Message{ID: fmt.Sprintf("m%04d", i), Text: fmt.Sprint(i), Sender: "alice"})
	}
	return msgs
}

func TestUnseenFirstRender(t *testing.T) {
	fresh, reset := unseen(history(0, 3), "")
	assert.False(t, reset)
	assert.Equal(t, history(0, 3), fresh)
}

func TestUnseenAppended(t *testing.T) {
	fresh, reset := unseen(history(0, 5), "m0002")
	assert.False(t, reset)
	assert.Equal(t, history(3, 5), fresh)
}

func TestUnseenAtCapacity(t *testing.T) {
	// The server keeps the last 1000: a new message drops the oldest and the
	// length stays the same.
	before := history(0, 1000)
	after := history(1, 1001)

	fresh, reset := unseen(after, lastID(before))
	assert.False(t, reset)
	assert.Equal(t, history(1000, 1001), fresh)
}

func TestUnseenNothingNew(t *testing.T) {
	fresh, reset := unseen(history(0, 3), "m0002")
	assert.False(t, reset)
	assert.Empty(t, fresh)
}

func TestUnseenCleared(t *testing.T) {
	fresh, reset := unseen([]globalchat.Message{}, "m0002")
	assert.True(t, reset)
	assert.Empty(t, fresh)
	assert.Equal(t, "", lastID(fresh))
}

func TestUnseenSwappedList(t *testing.T) {
	swapped := []globalchat.Message{{ID: "x1", Text: "offline", Sender: "bob"}, {ID: "x2", Text: "still", Sender: "bob"}}

	fresh, reset := unseen(swapped, "m0001")
	assert.True(t, reset)
	assert.Equal(t, swapped, fresh)
}
