package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	esc "github.com/mickamy/eventstore-core"
)

func main() {
	ctx := context.Background()

	store := esc.New(esc.Config{Logger: "console"}).
		Use(ConsolePublisher{}).
		WithHeaderExtractor(func(ctx context.Context) esc.Header {
			return esc.Header{"requested_by": "example/bank"}
		})
	if err := store.Start(ctx); err != nil {
		log.Fatalf("start failed: %v", err)
	}
	defer store.Stop()

	accountID := uuid.NewString()

	stream, err := store.GetEventStream(ctx, accountID, 0, -1)
	if err != nil {
		log.Fatal(err)
	}
	stream.AddEvent(AccountOpened{Owner: "Taro", Initial: 1000})
	if _, err := stream.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	stream.AddEvent(MoneyDeposited{Amount: 500})
	stream.AddEvent(MoneyWithdrawn{Amount: 200})
	if _, err := stream.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	snap, err := store.CreateSnapshot(ctx, accountID, stream.CurrentRevision(), balancePayload(stream))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("snapshot taken at revision %d: %+v\n", snap.Revision, snap.Data)

	_, found, tail, err := store.GetFromSnapshot(ctx, accountID, -1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("restored account %s: snapshot found=%v, tail events=%d, revision=%d\n",
		accountID, found, len(tail.Events), tail.CurrentRevision())
}

func balancePayload(stream *esc.EventStream) int64 {
	payloads := make([]any, len(stream.Events))
	for i, ev := range stream.Events {
		payloads[i] = ev.Payload
	}
	return balance(payloads)
}
