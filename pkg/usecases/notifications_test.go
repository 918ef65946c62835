package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/pkg/repo/memory"
)

func TestFanOut(t *testing.T) {
	event := entities.NotificationEvent{
		Type:           consts.NotificationMessage,
		Actor:          "alice",
		Title:          "alice",
		Message:        "hello",
		ConversationID: "conv-1",
	}

	tests := []struct {
		name    string
		targets []entities.FanOutTarget
		want    []string
	}{
		{
			name:    "skips the actor",
			targets: []entities.FanOutTarget{{UserID: "alice"}, {UserID: "bob"}},
			want:    []string{"bob"},
		},
		{
			name:    "skips muted targets",
			targets: []entities.FanOutTarget{{UserID: "bob", IsMuted: true}, {UserID: "carol"}},
			want:    []string{"carol"},
		},
		{
			name:    "one record per target",
			targets: []entities.FanOutTarget{{UserID: "bob"}, {UserID: "bob"}},
			want:    []string{"bob"},
		},
		{
			name:    "nothing to do",
			targets: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FanOut(event, tt.targets)
			if len(got) != len(tt.want) {
				t.Fatalf("FanOut() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, n := range got {
				if n.Recipient != tt.want[i] {
					t.Errorf("recipient %d = %s, want %s", i, n.Recipient, tt.want[i])
				}
				if n.Sender != "alice" || n.Type != event.Type || n.RelatedConversation != "conv-1" || n.IsRead {
					t.Errorf("unexpected record %+v", n)
				}
			}
		})
	}
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed map[string][]string
}

func (p *recordingPusher) PushNotification(_ context.Context, n *entities.Notification, deviceIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushed == nil {
		p.pushed = make(map[string][]string)
	}
	p.pushed[n.Recipient] = append(p.pushed[n.Recipient], deviceIDs...)
	return nil
}

type recordingMailer struct {
	jobs []medium.MailJob
}

func (m *recordingMailer) Enqueue(job medium.MailJob) bool {
	m.jobs = append(m.jobs, job)
	return true
}

func TestDispatchDelivers(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		if err := store.UpsertUser(ctx, activeUser(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddDevice(ctx, "bob", "bob-phone"); err != nil {
		t.Fatal(err)
	}

	pusher := &recordingPusher{}
	mailer := &recordingMailer{}
	usecase := NewNotificationUsecases(
		store, store, pusher, mailer, nil, []string{consts.NotificationGroupAdded}, 20,
	).(*NotificationUsecases)

	usecase.Dispatch(ctx, entities.NotificationEvent{
		Type:    consts.NotificationGroupAdded,
		Actor:   "alice",
		Title:   "Bible study",
		Message: "You were added to Bible study",
	}, []entities.FanOutTarget{{UserID: "bob"}, {UserID: "carol"}})

	usecase.deliver(ctx, <-usecase.deliveries)

	if got := pusher.pushed["bob"]; len(got) != 1 || got[0] != "bob-phone" {
		t.Errorf("bob pushed to %v", got)
	}
	if _, ok := pusher.pushed["carol"]; ok {
		t.Error("carol has no device but was pushed")
	}

	if len(mailer.jobs) != 2 {
		t.Fatalf("mailed %d jobs, want 2", len(mailer.jobs))
	}
	for _, job := range mailer.jobs {
		if job.To != job.Notification.Recipient+"@example.com" {
			t.Errorf("mail to %s for %s", job.To, job.Notification.Recipient)
		}
	}

	// message notifications are not in the email types
	usecase.Dispatch(ctx, entities.NotificationEvent{Type: consts.NotificationMessage, Actor: "alice"},
		[]entities.FanOutTarget{{UserID: "bob"}})
	usecase.deliver(ctx, <-usecase.deliveries)
	if len(mailer.jobs) != 2 {
		t.Errorf("message notification was emailed")
	}
}

func TestDispatchDeliversLive(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	ws := medium.NewWebSocket(time.Hour)
	bobConn := newGatewayConn()
	bob := ws.Add("bob", bobConn)
	defer ws.Remove("bob", bob.ID)

	usecase := NewNotificationUsecases(store, store, nil, nil, ws, nil, 20).(*NotificationUsecases)

	usecase.Dispatch(ctx, entities.NotificationEvent{
		Type:    consts.NotificationGroupAdded,
		Actor:   "alice",
		Title:   "Bible study",
		Message: "You were added to Bible study",
	}, []entities.FanOutTarget{{UserID: "bob"}, {UserID: "carol"}})

	select {
	case batch := <-usecase.deliveries:
		usecase.deliver(ctx, batch)
	default:
		t.Fatal("notifications were not queued for live delivery")
	}

	frames := bobConn.take()
	if len(frames) != 1 || frames[0].Event != consts.EventNotification {
		t.Fatalf("bob frames = %v", events(frames))
	}
	raw, _ := json.Marshal(frames[0].Data)
	n := entities.Notification{}
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatal(err)
	}
	if n.Recipient != "bob" || n.Message != "You were added to Bible study" {
		t.Errorf("live notification = %+v", n)
	}
}

type failingNotifications struct {
	repo.NotificationRepoImply
}

func (failingNotifications) InsertNotifications(context.Context, []*entities.Notification) error {
	return errors.New("cassandra unavailable")
}

func TestDispatchSwallowsStoreFailure(t *testing.T) {
	store := memory.NewStore()
	usecase := NewNotificationUsecases(
		failingNotifications{store}, store, &recordingPusher{}, nil, nil, nil, 20,
	).(*NotificationUsecases)

	usecase.Dispatch(context.Background(), entities.NotificationEvent{Type: consts.NotificationMessage, Actor: "alice"},
		[]entities.FanOutTarget{{UserID: "bob"}})

	select {
	case batch := <-usecase.deliveries:
		t.Errorf("unstored notifications queued for delivery: %d", len(batch))
	default:
	}
}

func TestNotificationReadState(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	usecase := NewNotificationUsecases(store, store, nil, nil, nil, nil, 2)

	for i := 0; i < 3; i++ {
		usecase.Dispatch(ctx, entities.NotificationEvent{Type: consts.NotificationMessage, Actor: "alice"},
			[]entities.FanOutTarget{{UserID: "bob"}})
	}

	first, next, err := usecase.GetNotifications(ctx, "bob", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(next) == 0 {
		t.Fatalf("first page = %d records, next = %q", len(first), next)
	}
	second, next, err := usecase.GetNotifications(ctx, "bob", 2, next)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || len(next) != 0 {
		t.Fatalf("second page = %d records, next = %q", len(second), next)
	}

	if err := usecase.MarkRead(ctx, "bob", first[0].ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if count, _ := usecase.UnreadCount(ctx, "bob"); count != 2 {
		t.Errorf("unread = %d, want 2", count)
	}

	assertKind(t, usecase.MarkRead(ctx, "bob", "bad-id"), entities.KindValidation)
	assertKind(t, usecase.MarkRead(ctx, "carol", first[0].ID), entities.KindNotFound)

	marked, err := usecase.MarkAllRead(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if marked != 2 {
		t.Errorf("MarkAllRead() = %d, want 2", marked)
	}
	if count, _ := usecase.UnreadCount(ctx, "bob"); count != 0 {
		t.Errorf("unread after mark all = %d", count)
	}

	if err := usecase.DeleteNotification(ctx, "bob", second[0].ID); err != nil {
		t.Fatalf("DeleteNotification() error = %v", err)
	}
	assertKind(t, usecase.DeleteNotification(ctx, "bob", second[0].ID), entities.KindNotFound)

	all, _, _ := usecase.GetNotifications(ctx, "bob", 0, nil)
	if len(all) != 2 {
		t.Errorf("notifications after delete = %d, want 2", len(all))
	}
}
