package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func lowBalance() notify.LeaveBalanceLow {
	return notify.LeaveBalanceLow{
		EmployeeID:  "emp-1",
		LeaveTypeID: "annual",
		Year:        2025,
		Available:   decimal.NewFromInt(1),
		Threshold:   decimal.NewFromInt(2),
	}
}

func TestSend_FailureIsLoggedNotReturned(t *testing.T) {
	// GIVEN: A dispatcher that always fails
	// WHEN: Sending an event
	// THEN: Nothing panics, the event was attempted and a warning is logged
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := notify.NewRecorder()
	rec.Err = errors.New("smtp down")

	notify.Send(context.Background(), rec, logger, lowBalance())

	assert.Len(t, rec.Events(), 1)
	assert.Contains(t, buf.String(), "notification dispatch failed")
	assert.Contains(t, buf.String(), "LEAVE_BALANCE_LOW")
}

func TestSend_DetachedFromCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	d := notify.DispatcherFunc(func(ctx context.Context, e notify.Event) error {
		sawErr = ctx.Err()
		return nil
	})
	notify.Send(ctx, d, nil, lowBalance())

	assert.NoError(t, sawErr)
}

func TestSend_NilDispatcherIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { notify.Send(context.Background(), nil, nil, lowBalance()) })
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := notify.NewRecorder()
	failing := notify.NewRecorder()
	failing.Err = errors.New("boom")

	err := notify.Multi(failing, ok).Dispatch(context.Background(), lowBalance())

	assert.Error(t, err)
	assert.Len(t, ok.Events(), 1)
	assert.Len(t, failing.Events(), 1)
}

func TestRecorder_OfKind(t *testing.T) {
	rec := notify.NewRecorder()
	ctx := context.Background()
	_ = rec.Dispatch(ctx, lowBalance())
	_ = rec.Dispatch(ctx, notify.IncompleteTimeEntry{EntryID: "e1", EmployeeID: "emp-1"})

	assert.Len(t, rec.OfKind(notify.KindLeaveBalanceLow), 1)
	assert.Len(t, rec.OfKind(notify.KindIncompleteTimeEntry), 1)
	assert.Empty(t, rec.OfKind(notify.KindPolicyViolation))
}

func TestAsyncDispatcher_DrainsOnClose(t *testing.T) {
	rec := notify.NewRecorder()
	d := notify.NewAsyncDispatcher(rec, slog.Default(), notify.AsyncConfig{WorkerCount: 2, QueueSize: 4})

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Dispatch(context.Background(), lowBalance()))
	}
	d.Close()

	assert.Len(t, rec.Events(), 20)
}

func TestAsyncDispatcher_CloseRacingDispatchLosesNothing(t *testing.T) {
	// GIVEN: Producers dispatching while the dispatcher is being closed
	for round := 0; round < 50; round++ {
		rec := notify.NewRecorder()
		d := notify.NewAsyncDispatcher(rec, slog.Default(), notify.AsyncConfig{WorkerCount: 1, QueueSize: 8})

		const producers, perProducer = 4, 10
		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < perProducer; i++ {
					assert.NoError(t, d.Dispatch(context.Background(), lowBalance()))
				}
			}()
		}

		// WHEN: Close runs concurrently with the producers
		close(start)
		d.Close()
		wg.Wait()

		// THEN: Every event was delivered, queued or inline
		require.Len(t, rec.Events(), producers*perProducer, "round %d", round)
	}
}

func TestAsyncDispatcher_AfterCloseDeliversInline(t *testing.T) {
	rec := notify.NewRecorder()
	d := notify.NewAsyncDispatcher(rec, nil, notify.AsyncConfig{})
	d.Close()

	require.NoError(t, d.Dispatch(context.Background(), lowBalance()))
	assert.Len(t, rec.Events(), 1)
}

// =============================================================================
// E-MAIL
// =============================================================================

type fakeMailer struct {
	mu   sync.Mutex
	sent []*gomail.Message
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m...)
	return nil
}

type addressBook map[generic.EmployeeID]string

func (a addressBook) EmailOf(_ context.Context, id generic.EmployeeID) (string, error) {
	addr, ok := a[id]
	if !ok {
		return "", generic.NotFound("employee", string(id))
	}
	return addr, nil
}

func TestEmailDispatcher_AddressesRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	d := &notify.EmailDispatcher{
		Mailer:  mailer,
		From:    "hr@example.com",
		Address: addressBook{"mgr-1": "manager@example.com"},
	}

	err := d.Dispatch(context.Background(), notify.PendingLeaveApproval{
		RequestID:   "req-1",
		EmployeeID:  "emp-1",
		ManagerID:   "mgr-1",
		Tiers:       []string{"MANAGER", "HR"},
		TotalDays:   decimal.NewFromInt(7),
		StartDate:   generic.NewTimePoint(2025, time.April, 1),
		EndDate:     generic.NewTimePoint(2025, time.April, 10),
		SubmittedAt: time.Now(),
	})

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"manager@example.com"}, mailer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Leave request awaiting your approval"}, mailer.sent[0].GetHeader("Subject"))
}

func TestEmailDispatcher_UnknownRecipient(t *testing.T) {
	d := &notify.EmailDispatcher{Mailer: &fakeMailer{}, Address: addressBook{}}
	err := d.Dispatch(context.Background(), lowBalance())
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRender_RejectionIncludesAlternative(t *testing.T) {
	start := generic.NewTimePoint(2025, time.May, 5)
	end := generic.NewTimePoint(2025, time.May, 9)
	_, body := notify.Render(notify.LeaveRequestRejected{
		RequestID:        "req-1",
		Reason:           "team coverage",
		AlternativeStart: &start,
		AlternativeEnd:   &end,
	})
	assert.Contains(t, body, "2025-05-05 to 2025-05-09")
}
