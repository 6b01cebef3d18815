package main

import (
	"context"
	"fmt"

	esc "github.com/mickamy/eventstore-core"
)

// ConsolePublisher is a toy esc.IPublisher: it prints each dispatched event
// and never fails. (The Dispatcher keeps a failed event queued and retries
// it on the next tick, so a real IPublisher may return errors.)
type ConsolePublisher struct{}

func (ConsolePublisher) Publish(_ context.Context, ev esc.Event) error {
	fmt.Printf("[dispatched] stream=%s rev=%d type=%s payload=%+v\n",
		ev.StreamID, ev.StreamRevision, esc.EventType(ev.Payload), ev.Payload)
	return nil
}

var _ esc.IPublisher = ConsolePublisher{}
