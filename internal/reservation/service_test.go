package reservation

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/notify"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store/memory"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/vocabulary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *recordingNotifier) Notify(ctx context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) Messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

type allocatorFunc func(ctx context.Context, scopeID string, day store.Day) (int, error)

func (f allocatorFunc) Next(ctx context.Context, scopeID string, day store.Day) (int, error) {
	return f(ctx, scopeID, day)
}

type fixture struct {
	service  *Service
	store    *memory.Store
	notifier *recordingNotifier
	clock    *testClock
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*Options)) fixture {
	t.Helper()
	entries, err := vocabulary.Load("")
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	st := memory.NewStore().WithClock(clock.Now)
	notifier := &recordingNotifier{}
	logs := &bytes.Buffer{}
	opts := Options{Clock: clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	svc := NewService(st, vocabulary.New(entries), notifier, log.New(logs, "", 0), opts)
	return fixture{service: svc, store: st, notifier: notifier, clock: clock, logs: logs}
}

func join(t *testing.T, f fixture, storeID string) models.Reservation {
	t.Helper()
	r, err := f.service.Create(context.Background(), CreateInput{StoreID: storeID, Name: "Guest", MobileNo: "91234567", Pax: 2})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return r
}

func TestJoinCallAndWaitList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := join(t, f, "S1")
	second := join(t, f, "S1")
	third := join(t, f, "S1")
	assert.Equal(t, []int{1, 2, 3}, []int{first.QueueNo, second.QueueNo, third.QueueNo})
	assert.Equal(t, models.StatusWaiting, first.Status)
	assert.Nil(t, first.CalledAt)

	called, err := f.service.SetStatus(ctx, second.ID, models.StatusCalled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, called.Status)
	require.NotNil(t, called.CalledAt)

	messages := f.notifier.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, notify.KindCalled, messages[0].Kind)
	assert.Equal(t, second.ID, messages[0].ReservationID)
	assert.Equal(t, "91234567", messages[0].Recipient)
	assert.Contains(t, messages[0].Body, "Number 2")

	waiting, err := f.service.ListByStatus(ctx, models.StoreScope("S1"), nil)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, 1, waiting[0].QueueNo)
	assert.Equal(t, 3, waiting[1].QueueNo)

	both, err := f.service.ListByStatus(ctx, models.StoreScope("S1"), []string{"Waiting", " Called ", "Waiting"})
	require.NoError(t, err)
	assert.Len(t, both, 3)
}

func TestRepeatCallKeepsFirstCalledAt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := join(t, f, "S1")

	first, err := f.service.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	again, err := f.service.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)

	assert.True(t, again.CalledAt.Equal(*first.CalledAt))
	assert.True(t, again.UpdatedAt.After(first.UpdatedAt))
	assert.Len(t, f.notifier.Messages(), 1)
}

func TestRepeatCallNotifiesWhenEnabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.NotifyOnRepeatCall = true })
	ctx := context.Background()
	r := join(t, f, "S1")

	_, err := f.service.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)
	_, err = f.service.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)
	_, err = f.service.SetStatus(ctx, r.ID, models.StatusServed)
	require.NoError(t, err)

	assert.Len(t, f.notifier.Messages(), 2)
}

func TestNotifyOnJoin(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.NotifyOnJoin = true })
	r := join(t, f, "S1")

	messages := f.notifier.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, notify.KindConfirmed, messages[0].Kind)
	assert.Equal(t, r.ID, messages[0].ReservationID)
}

func TestSetStatusErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := join(t, f, "S1")

	_, err := f.service.SetStatus(ctx, r.ID, "Teleported")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = f.service.SetStatus(ctx, r.ID, "called")
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = f.service.SetStatus(ctx, "missing", models.StatusCalled)
	assert.ErrorIs(t, err, store.ErrReservationNotFound)

	_, err = f.service.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrReservationNotFound)

	unchanged, err := f.service.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, unchanged.Status)
	assert.Empty(t, f.notifier.Messages())
}

func TestStatusChangeSurvivesNotificationFailure(t *testing.T) {
	entries, err := vocabulary.Load("")
	require.NoError(t, err)
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	dispatcher := notify.NewDispatcher(
		notify.Channel{Name: "sms", Provider: notify.NewProvider("fail", "sms", logger)},
		notify.Channel{Name: "whatsapp", Provider: notify.NewProvider("fail", "whatsapp", logger)},
		notify.Config{MaxAttempts: 1},
		logger,
	)
	st := memory.NewStore()
	dispatcher.WithRecorder(st)
	svc := NewService(st, vocabulary.New(entries), dispatcher, logger, Options{})
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateInput{StoreID: "S1", Name: "Guest", MobileNo: "+6591234567", Pax: 1})
	require.NoError(t, err)
	called, err := svc.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, called.Status)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, stored.Status)
	assert.Contains(t, logs.String(), "notify failed")

	records := st.Notifications()
	require.Len(t, records, 1)
	assert.Equal(t, store.NotificationFailed, records[0].Status)
	assert.Equal(t, 2, records[0].Attempts)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]CreateInput{
		"missing store":    {Name: "Guest", MobileNo: "91234567", Pax: 1},
		"missing name":     {StoreID: "S1", Name: "  ", MobileNo: "91234567", Pax: 1},
		"short mobile":     {StoreID: "S1", Name: "Guest", MobileNo: "1234", Pax: 1},
		"letters mobile":   {StoreID: "S1", Name: "Guest", MobileNo: "9123abcd", Pax: 1},
		"non-ascii digits": {StoreID: "S1", Name: "Guest", MobileNo: "9123٤٥٦٧", Pax: 1},
		"zero pax":         {StoreID: "S1", Name: "Guest", MobileNo: "91234567", Pax: 0},
	}
	for name, input := range cases {
		_, err := f.service.Create(context.Background(), input)
		assert.ErrorIs(t, err, store.ErrValidation, name)
	}
}

func TestTableAndWalkInScopesNumberSeparately(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	walkIn := join(t, f, "S1")
	table, err := f.service.Create(ctx, CreateInput{StoreID: "S1", QueueID: "Q1", Name: "Guest", MobileNo: "91234567", Pax: 4})
	require.NoError(t, err)

	assert.Equal(t, 1, walkIn.QueueNo)
	assert.Equal(t, 1, table.QueueNo)

	list, err := f.service.ListByStatus(ctx, models.QueueScope("S1", "Q1"), nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, table.ID, list[0].ID)
}

func TestScopesWithSharedIdentifiersStayApart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tableAt := func(storeID string) models.Reservation {
		r, err := f.service.Create(ctx, CreateInput{StoreID: storeID, QueueID: "Q1", Name: "Guest", MobileNo: "91234567", Pax: 2})
		require.NoError(t, err)
		return r
	}
	a := tableAt("storeA")
	b := tableAt("storeB")
	walkIn := join(t, f, "Q1")

	assert.Equal(t, []int{1, 1, 1}, []int{a.QueueNo, b.QueueNo, walkIn.QueueNo})

	for scope, want := range map[models.Scope]string{
		models.QueueScope("storeA", "Q1"): a.ID,
		models.QueueScope("storeB", "Q1"): b.ID,
		models.StoreScope("Q1"):           walkIn.ID,
	} {
		list, err := f.service.ListByStatus(ctx, scope, nil)
		require.NoError(t, err)
		require.Len(t, list, 1, scope.ID())
		assert.Equal(t, want, list[0].ID, scope.ID())
	}

	_, err := f.service.ListByStatus(ctx, models.QueueScope(" ", "Q1"), nil)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestNumbersRestartOnNextBusinessDay(t *testing.T) {
	loc := time.FixedZone("SGT", 8*3600)
	f := newFixture(t, func(o *Options) { o.Location = loc })

	// 09:00 UTC is 17:00 SGT. 16:30 UTC is still the same UTC day but 00:30 SGT the next.
	first := join(t, f, "S1")
	f.clock.Advance(7*time.Hour + 30*time.Minute)
	second := join(t, f, "S1")

	assert.Equal(t, 1, first.QueueNo)
	assert.Equal(t, 1, second.QueueNo)
}

func TestConcurrentJoinsThroughService(t *testing.T) {
	f := newFixture(t, nil)
	const n = 30

	var wg sync.WaitGroup
	numbers := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.service.Create(context.Background(), CreateInput{StoreID: "S1", Name: "Guest", MobileNo: "91234567", Pax: 1})
			assert.NoError(t, err)
			numbers[i] = r.QueueNo
		}(i)
	}
	wg.Wait()

	sort.Ints(numbers)
	for i, got := range numbers {
		assert.Equal(t, i+1, got)
	}
}

func TestAllocatorConflictRetries(t *testing.T) {
	next := 0
	f := newFixture(t, func(o *Options) {
		o.Allocator = allocatorFunc(func(ctx context.Context, scopeID string, day store.Day) (int, error) {
			next++
			return next, nil
		})
	})
	ctx := context.Background()

	first := join(t, f, "S1")
	assert.Equal(t, 1, first.QueueNo)

	// A counter reset hands out 1 again; the retry moves on to 2.
	next = 0
	second := join(t, f, "S1")
	assert.Equal(t, 2, second.QueueNo)
	assert.Contains(t, f.logs.String(), "reservation allocation conflict scope_id=S1 attempt=1/5")

	stuck := newFixture(t, func(o *Options) {
		o.Allocator = allocatorFunc(func(ctx context.Context, scopeID string, day store.Day) (int, error) {
			return 1, nil
		})
	})
	join(t, stuck, "S1")
	_, err := stuck.service.Create(ctx, CreateInput{StoreID: "S1", Name: "Guest", MobileNo: "91234567", Pax: 1})
	assert.ErrorIs(t, err, store.ErrConflictRetryExhausted)
}

func TestAllocatorFailureCreatesNothing(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Allocator = allocatorFunc(func(ctx context.Context, scopeID string, day store.Day) (int, error) {
			return 0, store.ErrStorageUnavailable
		})
	})
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateInput{StoreID: "S1", Name: "Guest", MobileNo: "91234567", Pax: 1})
	assert.True(t, errors.Is(err, store.ErrStorageUnavailable))

	list, err := f.service.ListByStatus(ctx, models.StoreScope("S1"), nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryAndStatuses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r := join(t, f, "S1")
	_, err := f.service.SetStatus(ctx, r.ID, models.StatusCalled)
	require.NoError(t, err)

	events, err := f.service.History(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NoError(t, store.VerifyChain(events))

	assert.Len(t, f.service.Statuses(), 4)
}

func TestParseStatusFilter(t *testing.T) {
	assert.Nil(t, ParseStatusFilter(""))
	assert.Equal(t, []string{"Waiting", "Called"}, ParseStatusFilter("Waiting, Called,,Waiting"))
}
