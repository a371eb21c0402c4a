package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/internal/shared/apperr"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func readyEntry(deadline time.Time) QueueEntry {
	return QueueEntry{
		ID:            uuid.New(),
		VenueID:       uuid.New(),
		PartySize:     2,
		Status:        StatusReady,
		ReadyDeadline: &deadline,
	}
}

func TestTransition_MarkReady(t *testing.T) {
	e := QueueEntry{ID: uuid.New(), Status: StatusWaiting}
	deadline := t0.Add(ReadyWindow)

	guard, patch, err := Transition(e, Command{Op: OpMarkReady, Deadline: deadline}, t0)
	require.NoError(t, err)
	assert.True(t, guard.Matches(e))

	after := patch.Apply(e)
	assert.Equal(t, StatusReady, after.Status)
	require.NotNil(t, after.ReadyDeadline)
	assert.True(t, deadline.Equal(*after.ReadyDeadline))
	assert.False(t, after.AwaitingMerchantConfirmation)
}

func TestTransition_Rejections(t *testing.T) {
	future := t0.Add(time.Minute)
	past := t0.Add(-time.Minute)

	tests := []struct {
		name  string
		entry QueueEntry
		cmd   Command
		kind  apperr.Kind
	}{
		{"mark ready twice", readyEntry(future), Command{Op: OpMarkReady, Deadline: future}, apperr.KindValidation},
		{"mark ready past deadline", QueueEntry{Status: StatusWaiting}, Command{Op: OpMarkReady, Deadline: past}, apperr.KindValidation},
		{"arrive while waiting", QueueEntry{Status: StatusWaiting}, Command{Op: OpConfirmArrival}, apperr.KindValidation},
		{"seat before arrival", readyEntry(future), Command{Op: OpMerchantSeats}, apperr.KindValidation},
		{"cancel seated", QueueEntry{Status: StatusSeated}, Command{Op: OpCancel, Actor: ActorPatron}, apperr.KindValidation},
		{"cancel with unknown actor", QueueEntry{Status: StatusWaiting}, Command{Op: OpCancel, Actor: "robot"}, apperr.KindValidation},
		{"expire before deadline", readyEntry(future), Command{Op: OpExpire}, apperr.KindValidation},
		{"extend while waiting", QueueEntry{Status: StatusWaiting}, Command{Op: OpGrantExtension, Delta: ExtensionDelta}, apperr.KindValidation},
		{"extend twice", func() QueueEntry { e := readyEntry(future); e.PatronDelayed = true; return e }(), Command{Op: OpGrantExtension, Delta: ExtensionDelta}, apperr.KindPolicy},
		{"unknown op", QueueEntry{Status: StatusWaiting}, Command{Op: "teleport"}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Transition(tt.entry, tt.cmd, t0)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestTransition_ConfirmArrivalIgnoresDeadline(t *testing.T) {
	// the deadline has passed but no expiry has been written yet
	e := readyEntry(t0.Add(-time.Second))

	guard, patch, err := Transition(e, Command{Op: OpConfirmArrival}, t0)
	require.NoError(t, err)
	assert.True(t, guard.Matches(e))

	after := patch.Apply(e)
	assert.Equal(t, StatusAwaitingConfirmation, after.Status)
	assert.True(t, after.AwaitingMerchantConfirmation)
	assert.Nil(t, after.ReadyDeadline)
}

func TestTransition_ExpireGuardRejectsArrivedEntry(t *testing.T) {
	e := readyEntry(t0)

	guard, patch, err := Transition(e, Command{Op: OpExpire}, t0)
	require.NoError(t, err)

	after := patch.Apply(e)
	assert.Equal(t, StatusNoShow, after.Status)
	assert.Equal(t, ExpiryReason, *after.CancellationReason)
	assert.Equal(t, ActorSystem, *after.CancelledBy)
	assert.Nil(t, after.ReadyDeadline)

	arrived := e
	arrived.Status = StatusAwaitingConfirmation
	arrived.AwaitingMerchantConfirmation = true
	arrived.ReadyDeadline = nil
	assert.False(t, guard.Matches(arrived))

	extended := e
	later := t0.Add(ExtensionDelta)
	extended.ReadyDeadline = &later
	assert.False(t, guard.Matches(extended))
}

func TestTransition_CancelDefaultsReason(t *testing.T) {
	_, patch, err := Transition(QueueEntry{Status: StatusReady}, Command{Op: OpCancel, Actor: ActorVenue, Reason: "  "}, t0)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled by venue", *patch.CancellationReason)
	assert.Equal(t, StatusCancelled, *patch.Status)
}

func TestExtendedDeadline(t *testing.T) {
	current := t0.Add(ReadyWindow)
	assert.Equal(t, t0.Add(15*time.Minute), ExtendedDeadline(&current, t0.Add(2*time.Minute), ExtensionDelta))
	assert.Equal(t, t0.Add(5*time.Minute), ExtendedDeadline(nil, t0, ExtensionDelta))
}

func TestExtensionTransition_GuardsCurrentDeadline(t *testing.T) {
	e := readyEntry(t0.Add(ReadyWindow))

	guard, patch, err := Transition(e, Command{Op: OpGrantExtension, Delta: ExtensionDelta}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, guard.Matches(e))

	after := patch.Apply(e)
	assert.True(t, after.PatronDelayed)
	assert.Equal(t, t0.Add(15*time.Minute), *after.ReadyDeadline)

	// a concurrent extension already landed
	assert.False(t, guard.Matches(after))
}

func TestPatchColumns(t *testing.T) {
	_, patch, err := Transition(readyEntry(t0), Command{Op: OpExpire}, t0)
	require.NoError(t, err)

	cols := patch.Columns(t0)
	assert.Equal(t, "no_show", cols["status"])
	assert.Nil(t, cols["ready_deadline"])
	assert.Contains(t, cols, "ready_deadline")
	assert.Equal(t, "system", cols["cancelled_by"])
	assert.Equal(t, t0, cols["updated_at"])
}

func TestPatronStatusAndDisplayState(t *testing.T) {
	deadline := t0
	tests := []struct {
		entry   QueueEntry
		patron  Status
		display DisplayState
	}{
		{QueueEntry{Status: StatusWaiting}, StatusWaiting, DisplayWaiting},
		{QueueEntry{Status: StatusReady, ReadyDeadline: &deadline}, StatusReady, DisplayReady},
		{QueueEntry{Status: StatusReady, ReadyDeadline: &deadline, PatronDelayed: true}, StatusReady, DisplayDelayedCountdown},
		{QueueEntry{Status: StatusAwaitingConfirmation, AwaitingMerchantConfirmation: true}, StatusAwaitingConfirmation, DisplayAwaitingConfirmation},
		{QueueEntry{Status: StatusSeated}, StatusSeated, DisplaySeated},
		{QueueEntry{Status: StatusCancelled}, StatusCancelled, DisplayCancelled},
		{QueueEntry{Status: StatusNoShow}, StatusCancelled, DisplayCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.entry.Status), func(t *testing.T) {
			assert.Equal(t, tt.patron, tt.entry.PatronStatus())
			assert.Equal(t, tt.display, tt.entry.DisplayState())
		})
	}
}

func TestExpiryDue(t *testing.T) {
	e := readyEntry(t0)
	assert.False(t, e.ExpiryDue(t0.Add(-time.Millisecond)))
	assert.True(t, e.ExpiryDue(t0))

	e.AwaitingMerchantConfirmation = true
	assert.False(t, e.ExpiryDue(t0.Add(time.Hour)))
}

func TestTimeRemaining(t *testing.T) {
	e := readyEntry(t0.Add(90 * time.Second))
	assert.Equal(t, 90*time.Second, *e.TimeRemaining(t0))
	assert.Equal(t, time.Duration(0), *e.TimeRemaining(t0.Add(time.Hour)))
	assert.Nil(t, (&QueueEntry{}).TimeRemaining(t0))
}
