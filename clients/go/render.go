package main

import "github.com/eldtechnologies/globalchat/clients/go/globalchat"

// unseen returns the messages after the one with id afterID. When afterID is
// no longer in msgs (chat cleared, oldest messages truncated past it, or a
// different list swapped in) the whole list is returned with reset set.
func unseen(msgs []globalchat.Message, afterID string) (fresh []globalchat.Message, reset bool) {
	if afterID == "" {
		return msgs, false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == afterID {
			return msgs[i+1:], false
		}
	}
	return msgs, true
}

// lastID returns the id of the final message, or "" for an empty list.
func lastID(msgs []globalchat.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}
