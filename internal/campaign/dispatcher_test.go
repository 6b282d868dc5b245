package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
)

// fakeStore is an in-memory Store with the same transition semantics as the
// SQL layer: guarded CAS on campaign status, single-row message claims.
type fakeStore struct {
	mu       sync.Mutex
	campaign *model.Campaign
	instance *model.Instance
	messages []*model.OutboundMessage
}

func newFakeStore(status string, delayMs int, recipients ...string) *fakeStore {
	s := &fakeStore{
		campaign: &model.Campaign{
			ID:         "cmp-1",
			InstanceID: "inst-1",
			Name:       "launch",
			Status:     status,
			DelayMs:    delayMs,
		},
		instance: &model.Instance{
			ID:            "inst-1",
			UserID:        "user-1",
			PhoneNumberID: "555000",
			AccessToken:   "token",
			Status:        model.InstanceConnected,
		},
	}
	for i, to := range recipients {
		s.messages = append(s.messages, &model.OutboundMessage{
			ID:         "msg-" + string(rune('a'+i)),
			CampaignID: "cmp-1",
			InstanceID: "inst-1",
			To:         to,
			Body:       "hello",
			Status:     model.MessagePending,
		})
	}
	s.campaign.TotalMessages = len(recipients)
	return s
}

func (s *fakeStore) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign.ID != campaignID {
		return nil, model.ErrNotFound
	}
	copied := *s.campaign
	return &copied, nil
}

func (s *fakeStore) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance.ID != instanceID {
		return nil, model.ErrNotFound
	}
	copied := *s.instance
	return &copied, nil
}

func (s *fakeStore) NextPendingMessage(ctx context.Context, campaignID string) (*model.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.CampaignID == campaignID && msg.Status == model.MessagePending {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *fakeStore) MarkMessageSent(ctx context.Context, messageID string, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == messageID && msg.Status == model.MessagePending {
			msg.Status = model.MessageSent
			msg.ProviderMessageID = providerMessageID
			return nil
		}
	}
	return model.ErrNotFound
}

func (s *fakeStore) MarkMessageFailed(ctx context.Context, messageID string, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == messageID && msg.Status == model.MessagePending {
			msg.Status = model.MessageFailed
			msg.ErrorText = errorText
			return nil
		}
	}
	return model.ErrNotFound
}

func (s *fakeStore) IncrementCampaignSent(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.SentMessages++
	return nil
}

func (s *fakeStore) IncrementCampaignFailed(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.FailedMessages++
	return nil
}

func (s *fakeStore) TransitionCampaign(ctx context.Context, campaignID string, from string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign.ID != campaignID || s.campaign.Status != from {
		return false, nil
	}
	s.campaign.Status = to
	return true, nil
}

func (s *fakeStore) SetCampaignStatus(ctx context.Context, campaignID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.Status = status
	return nil
}

func (s *fakeStore) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.Status
}

func (s *fakeStore) counters() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.SentMessages, s.campaign.FailedMessages
}

func (s *fakeStore) setInstanceStatus(status string) {
	s.mu.Lock()
	s.instance.Status = status
	s.mu.Unlock()
}

// fakeSender records every send and fails recipients listed in failFor.
type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (f *fakeSender) SendText(ctx context.Context, creds cloudapi.Credentials, to string, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to] {
		return "", errors.New("provider rejected recipient")
	}
	f.sent = append(f.sent, to)
	return "wamid." + to, nil
}

func (f *fakeSender) SendMedia(ctx context.Context, creds cloudapi.Credentials, to string, mediaURL string, kind string, caption string) (string, error) {
	return f.SendText(ctx, creds, to, caption)
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(store Store, sender Sender) *Dispatcher {
	d := NewDispatcher(store, sender, events.NewBus())
	d.sleep = func(time.Duration) {}
	return d
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestStartRunsToCompletion(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001", "15550002", "15550003")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return store.status() == model.CampaignCompleted })

	sent, failed := store.counters()
	if sent != 3 || failed != 0 {
		t.Fatalf("counters = (%d, %d), want (3, 0)", sent, failed)
	}
	if sender.sentCount() != 3 {
		t.Fatalf("sender invoked %d times, want 3", sender.sentCount())
	}
}

func TestFailedMessageDoesNotAbortCampaign(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001", "15550002", "15550003")
	sender := &fakeSender{failFor: map[string]bool{"15550002": true}}
	d := newTestDispatcher(store, sender)

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return store.status() == model.CampaignCompleted })

	sent, failed := store.counters()
	if sent != 2 || failed != 1 {
		t.Fatalf("counters = (%d, %d), want (2, 1)", sent, failed)
	}
}

func TestStartRejectsNonPending(t *testing.T) {
	store := newFakeStore(model.CampaignCompleted, 500)
	d := newTestDispatcher(store, &fakeSender{})

	if err := d.Start(context.Background(), "cmp-1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("Start on completed campaign = %v, want ErrNotPending", err)
	}
}

func TestStartRejectsDisconnectedInstance(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001")
	store.setInstanceStatus(model.InstanceDisconnected)
	d := newTestDispatcher(store, &fakeSender{})

	if err := d.Start(context.Background(), "cmp-1"); !errors.Is(err, ErrInstanceNotConnected) {
		t.Fatalf("Start with disconnected instance = %v, want ErrInstanceNotConnected", err)
	}
	if store.status() != model.CampaignPending {
		t.Fatalf("campaign status = %s, want PENDING", store.status())
	}
}

func TestPauseStopsLoopAndResumeContinues(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001", "15550002", "15550003", "15550004")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	// Hold the loop inside its pacing delay so Pause lands between sends.
	gate := make(chan struct{})
	var once sync.Once
	d.sleep = func(time.Duration) {
		once.Do(func() { <-gate })
	}

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return sender.sentCount() == 1 })

	if err := d.Pause(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return !d.IsRunning("cmp-1") })
	if got := sender.sentCount(); got != 1 {
		t.Fatalf("sends after pause = %d, want 1", got)
	}
	if store.status() != model.CampaignPaused {
		t.Fatalf("campaign status = %s, want PAUSED", store.status())
	}

	if err := d.Resume(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.status() == model.CampaignCompleted })

	sent, _ := store.counters()
	if sent != 4 {
		t.Fatalf("sent counter = %d, want 4", sent)
	}
}

func TestResumeRejectsNonPaused(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001")
	d := newTestDispatcher(store, &fakeSender{})

	if err := d.Resume(context.Background(), "cmp-1"); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("Resume on pending campaign = %v, want ErrNotPaused", err)
	}
}

func TestCancelLeavesRemainingMessagesPending(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001", "15550002", "15550003")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	gate := make(chan struct{})
	var once sync.Once
	d.sleep = func(time.Duration) {
		once.Do(func() { <-gate })
	}

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return sender.sentCount() == 1 })

	if err := d.Cancel(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return !d.IsRunning("cmp-1") })
	if store.status() != model.CampaignCancelled {
		t.Fatalf("campaign status = %s, want CANCELLED", store.status())
	}

	store.mu.Lock()
	pending := 0
	for _, msg := range store.messages {
		if msg.Status == model.MessagePending {
			pending++
		}
	}
	store.mu.Unlock()
	if pending != 2 {
		t.Fatalf("pending messages after cancel = %d, want 2", pending)
	}
}

func TestRunSleepsDelayBetweenSends(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 1000, "15550001", "15550002", "15550003")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	var mu sync.Mutex
	var delays []time.Duration
	d.sleep = func(dur time.Duration) {
		mu.Lock()
		delays = append(delays, dur)
		mu.Unlock()
	}

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.status() == model.CampaignCompleted })

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 3 {
		t.Fatalf("sleep invocations = %d, want one per send", len(delays))
	}
	for i, dur := range delays {
		if dur != 1000*time.Millisecond {
			t.Errorf("sleep %d = %v, want 1s", i, dur)
		}
	}
}

// cancelRaceStore fails the first cancel transition and concurrently flips the
// campaign to PAUSED, the way the loop does on instance disconnect.
type cancelRaceStore struct {
	*fakeStore
	raced bool
}

func (s *cancelRaceStore) TransitionCampaign(ctx context.Context, campaignID string, from string, to string) (bool, error) {
	if to == model.CampaignCancelled && !s.raced {
		s.raced = true
		s.fakeStore.mu.Lock()
		s.fakeStore.campaign.Status = model.CampaignPaused
		s.fakeStore.mu.Unlock()
		return false, nil
	}
	return s.fakeStore.TransitionCampaign(ctx, campaignID, from, to)
}

func TestCancelRetriesAfterLosingRace(t *testing.T) {
	store := &cancelRaceStore{fakeStore: newFakeStore(model.CampaignRunning, 500, "15550001")}
	d := newTestDispatcher(store, &fakeSender{})

	if err := d.Cancel(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Cancel after lost race = %v, want nil", err)
	}
	if store.status() != model.CampaignCancelled {
		t.Fatalf("campaign status = %s, want CANCELLED", store.status())
	}
}

func TestCancelRejectsTerminal(t *testing.T) {
	store := newFakeStore(model.CampaignCancelled, 500)
	d := newTestDispatcher(store, &fakeSender{})

	if err := d.Cancel(context.Background(), "cmp-1"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("Cancel on cancelled campaign = %v, want ErrTerminal", err)
	}
}

func TestDisconnectMidRunPausesCampaign(t *testing.T) {
	store := newFakeStore(model.CampaignPending, 500, "15550001", "15550002", "15550003")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	d.sleep = func(time.Duration) {
		if sender.sentCount() == 1 {
			store.setInstanceStatus(model.InstanceDisconnected)
		}
	}

	if err := d.Start(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return store.status() == model.CampaignPaused })
	if got := sender.sentCount(); got != 1 {
		t.Fatalf("sends before auto-pause = %d, want 1", got)
	}
}

func TestDuplicateRunIsNoOp(t *testing.T) {
	store := newFakeStore(model.CampaignRunning, 500, "15550001", "15550002")
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run("cmp-1")
		}()
	}
	wg.Wait()

	if got := sender.sentCount(); got != 2 {
		t.Fatalf("total sends across concurrent runs = %d, want 2", got)
	}
	if store.status() != model.CampaignCompleted {
		t.Fatalf("campaign status = %s, want COMPLETED", store.status())
	}
}
