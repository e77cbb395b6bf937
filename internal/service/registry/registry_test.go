package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WaDesk/entity"
	"WaDesk/internal/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store.NewMemStore(), 3, log)
}

func TestCreateOrFetch(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	conv, created, err := reg.CreateOrFetch(ctx, "line1", "5511999", entity.ConversationMeta{ContactName: "Maria"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, entity.StateAutomation, conv.State)
	assert.Equal(t, "Maria", conv.Metadata.ContactName)

	// The open thread is returned as-is on a second call.
	again, created, err := reg.CreateOrFetch(ctx, "line1", "5511999", entity.ConversationMeta{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, "Maria", again.Metadata.ContactName, "meta of an existing thread is untouched")

	// RecordInbound shares the same create path: it must attach to the open
	// conversation, never fork a second one for the thread.
	recorded, err := reg.RecordInbound(ctx, "line1", "5511999", "oi", "")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, recorded.ID)

	// A closed thread is terminal; the next contact opens a fresh one.
	_, err = reg.Close(ctx, "line1", "5511999", "")
	require.NoError(t, err)
	fresh, created, err := reg.CreateOrFetch(ctx, "line1", "5511999", entity.ConversationMeta{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	conv, err := reg.RecordInbound(ctx, "line1", "5511999", "oi", "Maria")
	require.NoError(t, err)
	assert.Equal(t, entity.StateAutomation, conv.State)
	assert.Equal(t, "Maria", conv.Metadata.ContactName)
	assert.Equal(t, 1, conv.Metadata.Unread)

	conv, err = reg.Escalate(ctx, "line1", "5511999", entity.ReasonUserRequested)
	require.NoError(t, err)
	assert.Equal(t, entity.StateWaiting, conv.State)

	conv, err = reg.Claim(ctx, "line1", "5511999", "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.StateAssigned, conv.State)
	assert.Equal(t, "alice", conv.AssignedAgent)

	conv, err = reg.Transfer(ctx, "line1", "5511999", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", conv.AssignedAgent)

	conv, err = reg.Close(ctx, "line1", "5511999", "bob")
	require.NoError(t, err)
	assert.Equal(t, entity.StateClosed, conv.State)
	assert.Empty(t, conv.AssignedAgent)

	// History stayed append-only through the whole run.
	states := make([]string, 0, len(conv.History))
	for _, e := range conv.History {
		states = append(states, e.State)
	}
	assert.Equal(t, []string{
		entity.StateAutomation,
		entity.StateWaiting,
		entity.StateAssigned,
		entity.StateAssigned,
		entity.StateClosed,
	}, states)
}

func TestClaimConflictNamesHolder(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)

	_, err = reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)

	_, err = reg.Claim(ctx, "line1", "chat1", "bob")
	require.Error(t, err)
	holder, ok := ConflictHolder(err)
	require.True(t, ok)
	assert.Equal(t, "alice", holder)
}

func TestClaimSelfIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)

	first, err := reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)

	second, err := reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", second.AssignedAgent)
	assert.Len(t, second.History, len(first.History), "re-claim must not append history")
}

func TestClaimGuards(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)

	_, err = reg.Claim(ctx, "line1", "chat1", "alice")
	assert.ErrorIs(t, err, ErrStillAutomated)

	_, err = reg.Claim(ctx, "line1", "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)
	_, err = reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)
	_, err = reg.Close(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)

	_, err = reg.Claim(ctx, "line1", "chat1", "bob")
	assert.ErrorIs(t, err, ErrNotFound, "closed threads are not open for claiming")
}

func TestEscalateAlreadyWaitingIsNoop(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)

	first, err := reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)

	second, err := reg.Escalate(ctx, "line1", "chat1", entity.ReasonAttemptLimit)
	require.NoError(t, err)
	assert.Len(t, second.History, len(first.History))
}

func TestBumpBotAttemptEscalatesAtLimit(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		conv, escalated, err := reg.BumpBotAttempt(ctx, "line1", "chat1")
		require.NoError(t, err)
		assert.False(t, escalated)
		assert.Equal(t, i, conv.BotAttempts)
		assert.Equal(t, entity.StateAutomation, conv.State)
	}

	conv, escalated, err := reg.BumpBotAttempt(ctx, "line1", "chat1")
	require.NoError(t, err)
	assert.True(t, escalated)
	assert.Equal(t, entity.StateWaiting, conv.State)

	last := conv.History[len(conv.History)-1]
	assert.Equal(t, entity.ReasonAttemptLimit, last.Reason)
}

func TestCloseByNonHolderFails(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)
	_, err = reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)

	_, err = reg.Close(ctx, "line1", "chat1", "bob")
	holder, ok := ConflictHolder(err)
	require.True(t, ok)
	assert.Equal(t, "alice", holder)
}

func TestReopenAfterCloseCreatesNewConversation(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	first, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)
	_, err = reg.Claim(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)
	_, err = reg.Close(ctx, "line1", "chat1", "alice")
	require.NoError(t, err)

	second, err := reg.RecordInbound(ctx, "line1", "chat1", "voltei", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, entity.StateAutomation, second.State)
	assert.Zero(t, second.BotAttempts)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "closed conversation stays in the log")
}

func TestAssignDirectRecordsOrigin(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)

	conv, err := reg.AssignDirect(ctx, "line1", "chat1", "alice", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, entity.StateAssigned, conv.State)

	last := conv.History[len(conv.History)-1]
	assert.Equal(t, entity.ReasonDirectAssign+":supervisor", last.Reason)
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "chat1", entity.ReasonUserRequested)
	require.NoError(t, err)

	agents := []string{"alice", "bob", "carol", "dave"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, conflicts int

	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			_, err := reg.Claim(ctx, "line1", "chat1", agent)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			if _, ok := ConflictHolder(err); ok {
				conflicts++
			}
		}(agent)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, len(agents)-1, conflicts)
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	_, err := reg.RecordInbound(ctx, "line1", "chat1", "oi", "")
	require.NoError(t, err)
	_, err = reg.RecordInbound(ctx, "line1", "chat1", "tem alguem?", "")
	require.NoError(t, err)

	require.NoError(t, reg.MarkRead(ctx, "line1", "chat1"))

	conv, err := reg.Get(ctx, "line1", "chat1")
	require.NoError(t, err)
	assert.Zero(t, conv.Metadata.Unread)
}
