package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(Event{Kind: KindVoteCast, ArtistID: 1, UserID: 2, SubjectID: 3})

	select {
	case evt := <-ch:
		if evt.Kind != KindVoteCast || evt.SubjectID != 3 {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.ID == "" || evt.Timestamp.IsZero() {
			t.Fatalf("event not stamped: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{Kind: KindPurchase})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestRandomDemoEventIsPlausible(t *testing.T) {
	s := New()
	for i := 0; i < 50; i++ {
		evt := s.RandomDemoEvent()
		if evt.Kind == "" || evt.ArtistID == 0 || evt.UserID == 0 {
			t.Fatalf("implausible demo event: %+v", evt)
		}
	}
}
