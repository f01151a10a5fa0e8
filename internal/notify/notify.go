package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"geoattend/internal/queue"
)

// Notice describes an absent outcome for the student's parent and mentor.
type Notice struct {
	StudentName string    `json:"studentName"`
	RollNumber  string    `json:"rollNumber"`
	ClassName   string    `json:"className"`
	ClassID     string    `json:"classId"`
	Time        time.Time `json:"time"`
	Reason      string    `json:"reason"`
	Instructor  string    `json:"instructor"`
	ParentEmail string    `json:"parentEmail,omitempty"`
	MentorEmail string    `json:"mentorEmail,omitempty"`
}

// Notifier is told about every absent outcome. Delivery is best effort.
type Notifier interface {
	NotifyAbsent(ctx context.Context, n Notice) error
}

// Email is a rendered message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Compose renders the parent and mentor emails for n. Recipients without an
// address are skipped.
func Compose(n Notice) []Email {
	when := n.Time.Format("2006-01-02 15:04:05")
	var out []Email
	if n.ParentEmail != "" {
		out = append(out, Email{
			To:      n.ParentEmail,
			Subject: "Attendance Alert - " + n.StudentName + " marked ABSENT",
			Body: fmt.Sprintf("Dear Parent,\n\nYour child %s (%s) was marked ABSENT for %s on %s.\n\nReason: %s\n\nInstructor: %s\n\n"+
				"Please contact the school if you have any questions.\n\nBest regards,\nSmart Attendance System",
				n.StudentName, n.RollNumber, n.ClassName, when, n.Reason, n.Instructor),
		})
	}
	if n.MentorEmail != "" {
		out = append(out, Email{
			To:      n.MentorEmail,
			Subject: "Student Absence Alert - " + n.StudentName,
			Body: fmt.Sprintf("Dear Mentor,\n\nStudent %s (%s) was marked ABSENT for %s on %s.\n\nReason: %s\n\n"+
				"Please follow up with the student.\n\nBest regards,\nSmart Attendance System",
				n.StudentName, n.RollNumber, n.ClassName, when, n.Reason),
		})
	}
	return out
}

// LogNotifier "sends" emails by writing them to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier writes to logger, or the standard logger when nil.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifyAbsent(_ context.Context, n Notice) error {
	for _, e := range Compose(n) {
		l.logger.Printf("email sent to %s\nSubject: %s\n%s", e.To, e.Subject, e.Body)
	}
	return nil
}

// QueueNotifier hands notices to the worker through a queue.
type QueueNotifier struct {
	q queue.Queue
}

// NewQueueNotifier publishes onto q.
func NewQueueNotifier(q queue.Queue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

func (qn *QueueNotifier) NotifyAbsent(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notice: %w", err)
	}
	return qn.q.Publish(ctx, queue.Message{Type: queue.TypeAbsence, Body: body})
}

// Decode extracts a notice from a queue message.
func Decode(msg queue.Message) (Notice, error) {
	if msg.Type != queue.TypeAbsence {
		return Notice{}, fmt.Errorf("notify: unexpected message type %q", msg.Type)
	}
	var n Notice
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		return Notice{}, fmt.Errorf("notify: decode notice: %w", err)
	}
	return n, nil
}

// Deliver consumes absence notices from q and hands each to target until ctx
// ends. Malformed messages and delivery failures are logged and skipped.
func Deliver(ctx context.Context, q queue.Queue, target Notifier) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("notify: consume: %w", err)
	}
	for msg := range messages {
		n, err := Decode(msg)
		if err != nil {
			log.Printf("skipping message: %v", err)
			continue
		}
		if err := target.NotifyAbsent(ctx, n); err != nil {
			log.Printf("absence notice for %s/%s failed: %v", n.RollNumber, n.ClassID, err)
		}
	}
	return nil
}
