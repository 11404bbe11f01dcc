package bus

import (
	"context"
	"testing"
	"time"

	"github.com/synapsenet/node/internal/model"
)

func TestBus_PublishSubscribeBroadcast(t *testing.T) {
	b, err := Start()
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	defer b.Close()

	received := make(chan model.Grain, 1)
	sub, err := b.SubscribeBroadcast(func(_ context.Context, g model.Grain) {
		received <- g
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	want := model.Grain{ID: [32]byte{1, 2, 3}}
	if err := b.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != want.ID {
			t.Fatalf("expected id %v, got %v", want.ID, got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
