package notify

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"geoattend/internal/queue"
)

func sampleNotice() Notice {
	return Notice{
		StudentName: "John Doe",
		RollNumber:  "CS001",
		ClassName:   "Computer Science Fundamentals",
		ClassID:     "CS101",
		Time:        time.Date(2024, time.January, 2, 9, 15, 0, 0, time.UTC),
		Reason:      "Wrong location - 13000000m away from Computer Science Fundamentals",
		Instructor:  "DR.DINESH",
		ParentEmail: "parent@example.com",
		MentorEmail: "mentor@example.com",
	}
}

func TestCompose(t *testing.T) {
	emails := Compose(sampleNotice())
	if len(emails) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(emails))
	}
	if emails[0].To != "parent@example.com" || !strings.Contains(emails[0].Subject, "marked ABSENT") {
		t.Errorf("unexpected parent email %+v", emails[0])
	}
	if !strings.Contains(emails[0].Body, "Instructor: DR.DINESH") {
		t.Errorf("parent email should name the instructor")
	}
	if emails[1].To != "mentor@example.com" || !strings.Contains(emails[1].Body, "Wrong location") {
		t.Errorf("unexpected mentor email %+v", emails[1])
	}

	n := sampleNotice()
	n.MentorEmail = ""
	if got := Compose(n); len(got) != 1 {
		t.Errorf("expected only the parent email, got %d", len(got))
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	ln := NewLogNotifier(log.New(&buf, "", 0))
	if err := ln.NotifyAbsent(context.Background(), sampleNotice()); err != nil {
		t.Fatalf("NotifyAbsent failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "email sent to parent@example.com") || !strings.Contains(out, "email sent to mentor@example.com") {
		t.Errorf("unexpected log output:\n%s", out)
	}
}

func TestQueueNotifier_RoundTrip(t *testing.T) {
	q := queue.NewInMemory(4)
	qn := NewQueueNotifier(q)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := qn.NotifyAbsent(ctx, sampleNotice()); err != nil {
		t.Fatalf("NotifyAbsent failed: %v", err)
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	select {
	case msg := <-msgs:
		n, err := Decode(msg)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		want := sampleNotice()
		if n.RollNumber != want.RollNumber || n.Reason != want.Reason || !n.Time.Equal(want.Time) {
			t.Errorf("unexpected notice %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("no message consumed")
	}
}

func TestDecode_RejectsOtherTypes(t *testing.T) {
	if _, err := Decode(queue.Message{Type: "checkin", Body: []byte("{}")}); err == nil {
		t.Errorf("expected error for foreign message type")
	}
}

type captureNotifier struct {
	got chan Notice
}

func (c *captureNotifier) NotifyAbsent(_ context.Context, n Notice) error {
	c.got <- n
	return nil
}

func TestDeliver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	target := &captureNotifier{got: make(chan Notice, 1)}
	done := make(chan error, 1)
	go func() { done <- Deliver(ctx, q, target) }()

	if err := q.Publish(ctx, queue.Message{Type: "something-else", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := NewQueueNotifier(q).NotifyAbsent(ctx, sampleNotice()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case n := <-target.got:
		if n.RollNumber != "CS001" || n.ClassID != "CS101" {
			t.Errorf("unexpected notice %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("notice was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not stop after cancel")
	}
}
