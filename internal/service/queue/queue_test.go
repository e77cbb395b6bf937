package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WaDesk/entity"
	"WaDesk/internal/service/registry"
	"WaDesk/internal/store"
)

func testManager(t *testing.T) (*Manager, *registry.Registry, store.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemStore()
	reg := registry.New(st, 3, log)
	return New(reg, st, log), reg, st
}

// seed populates the registry with one automation, two waiting, one assigned
// and one closed conversation.
func seed(t *testing.T, reg *registry.Registry) {
	t.Helper()
	ctx := context.Background()

	// automation
	_, err := reg.RecordInbound(ctx, "line1", "auto1", "oi", "")
	require.NoError(t, err)

	// two waiting
	for _, chat := range []string{"wait1", "wait2"} {
		_, err = reg.RecordInbound(ctx, "line1", chat, "oi", "")
		require.NoError(t, err)
		_, err = reg.Escalate(ctx, "line1", chat, entity.ReasonUserRequested)
		require.NoError(t, err)
	}

	// one assigned
	_, err = reg.RecordInbound(ctx, "line1", "open1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "open1", entity.ReasonUserRequested)
	require.NoError(t, err)
	_, err = reg.Claim(ctx, "line1", "open1", "alice")
	require.NoError(t, err)

	// one closed
	_, err = reg.RecordInbound(ctx, "line1", "done1", "oi", "")
	require.NoError(t, err)
	_, err = reg.Escalate(ctx, "line1", "done1", entity.ReasonUserRequested)
	require.NoError(t, err)
	_, err = reg.Claim(ctx, "line1", "done1", "alice")
	require.NoError(t, err)
	_, err = reg.Close(ctx, "line1", "done1", "alice")
	require.NoError(t, err)
}

func TestStatsCountsAndActiveTotal(t *testing.T) {
	qm, reg, _ := testManager(t)
	seed(t, reg)

	stats, err := qm.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Automation)
	assert.Equal(t, 2, stats.Waiting)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 4, stats.Total, "total excludes closed conversations")
	assert.Zero(t, stats.AvgWaitMin, "sub-minute waits round down to zero")
}

func TestStatsAverageWait(t *testing.T) {
	qm, _, st := testManager(t)
	ctx := context.Background()

	now := time.Now()
	withWait := func(chatID string, wait time.Duration) *entity.Conversation {
		c := entity.NewConversation("line1", chatID, entity.ConversationMeta{})
		c.History = append(c.History,
			entity.StateEntry{State: entity.StateWaiting, At: now.Add(-wait)},
			entity.StateEntry{State: entity.StateAssigned, At: now, Agent: "alice"},
		)
		c.State = entity.StateAssigned
		c.AssignedAgent = "alice"
		return c
	}

	doc := struct {
		Conversations []*entity.Conversation `json:"conversations"`
	}{
		Conversations: []*entity.Conversation{
			withWait("chat1", 10*time.Minute),
			withWait("chat2", 5*time.Minute),
		},
	}
	require.NoError(t, st.WriteDocument(ctx, store.ConversationsKey, doc))

	stats, err := qm.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.AvgWaitMin, "mean of 10 and 5 minutes, truncated")
}

func TestListByState(t *testing.T) {
	qm, reg, _ := testManager(t)
	seed(t, reg)
	ctx := context.Background()

	waiting, err := qm.ListByState(ctx, entity.StateWaiting, "")
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	mine, err := qm.ListByState(ctx, entity.StateAssigned, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "open1", mine[0].ChatID)

	others, err := qm.ListByState(ctx, entity.StateAssigned, "bob")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestBatchClaimContinuesPastFailures(t *testing.T) {
	qm, reg, _ := testManager(t)
	seed(t, reg)
	ctx := context.Background()

	all, err := reg.List(ctx)
	require.NoError(t, err)

	var ids []string
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	ids = append(ids, "does-not-exist")

	results := qm.BatchClaim(ctx, ids, "bob", "bob")
	require.Len(t, results, len(ids))

	var ok, failed int
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
			assert.NotEmpty(t, r.Message)
		}
	}
	// Two waiting claims succeed; automation, alice's conversation, the
	// closed one and the unknown id all fail individually.
	assert.Equal(t, 2, ok)
	assert.Equal(t, 4, failed)
}

func TestBatchClaimRecordsOrigin(t *testing.T) {
	qm, reg, _ := testManager(t)
	seed(t, reg)
	ctx := context.Background()

	waiting, err := qm.ListByState(ctx, entity.StateWaiting, "")
	require.NoError(t, err)
	require.Len(t, waiting, 2)

	// A supervisor claims on bob's behalf.
	ids := []string{waiting[0].ID, waiting[1].ID}
	results := qm.BatchClaim(ctx, ids, "bob", "supervisor")
	for _, r := range results {
		require.True(t, r.Success, r.Message)
	}

	mine, err := qm.ListByState(ctx, entity.StateAssigned, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, c := range mine {
		last := c.History[len(c.History)-1]
		assert.Equal(t, entity.ReasonClaimed+":supervisor", last.Reason)
		assert.Equal(t, "bob", last.Agent)
	}
}

func TestBatchClaimSelfOmitsOrigin(t *testing.T) {
	qm, reg, _ := testManager(t)
	seed(t, reg)
	ctx := context.Background()

	waiting, err := qm.ListByState(ctx, entity.StateWaiting, "")
	require.NoError(t, err)

	results := qm.BatchClaim(ctx, []string{waiting[0].ID}, "bob", "bob")
	require.True(t, results[0].Success)

	mine, err := qm.ListByState(ctx, entity.StateAssigned, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	last := mine[0].History[len(mine[0].History)-1]
	assert.Equal(t, entity.ReasonClaimed, last.Reason)
}

func TestBatchClose(t *testing.T) {
	qm, reg, _ := testManager(t)
	ctx := context.Background()

	for _, chat := range []string{"a", "b"} {
		_, err := reg.RecordInbound(ctx, "line1", chat, "oi", "")
		require.NoError(t, err)
	}
	all, err := reg.List(ctx)
	require.NoError(t, err)

	ids := []string{all[0].ID, all[1].ID}
	results := qm.BatchClose(ctx, ids, "alice")
	for _, r := range results {
		assert.True(t, r.Success)
	}

	// Closing again reports per-item failure, not an error.
	results = qm.BatchClose(ctx, ids, "alice")
	for _, r := range results {
		assert.False(t, r.Success)
	}

	stats, err := qm.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Closed)
	assert.Zero(t, stats.Total)

	closed, err := reg.List(ctx)
	require.NoError(t, err)
	for _, c := range closed {
		last := c.History[len(c.History)-1]
		assert.Equal(t, entity.ReasonBatchClosed, last.Reason)
	}
}

func TestPresenceUpsert(t *testing.T) {
	qm, _, _ := testManager(t)
	ctx := context.Background()

	require.NoError(t, qm.SetPresence(ctx, "alice", entity.AgentAvailable))
	require.NoError(t, qm.SetPresence(ctx, "bob", entity.AgentBusy))
	require.NoError(t, qm.SetPresence(ctx, "alice", entity.AgentAway))

	records, err := qm.ListPresence(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byAgent := make(map[string]string, len(records))
	for _, r := range records {
		byAgent[r.AgentID] = r.Availability
	}
	assert.Equal(t, entity.AgentAway, byAgent["alice"])
	assert.Equal(t, entity.AgentBusy, byAgent["bob"])
}
