package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WaDesk/entity"
	"WaDesk/internal/service/session"
)

type stubSessions struct {
	sent bool
	err  error
}

func (s *stubSessions) CreateLine(string) (*session.Controller, error) { return nil, nil }
func (s *stubSessions) StatusAll() []entity.SessionInfo               { return nil }
func (s *stubSessions) Qr(string) (string, bool, error)               { return "", false, nil }
func (s *stubSessions) Logout(string) error                           { return nil }

func (s *stubSessions) Send(_, _, _ string) (bool, error) {
	return s.sent, s.err
}

type recordingOutbox struct {
	entries []entity.OutboundMessage
}

func (o *recordingOutbox) Enqueue(lineID, destination, text string) {
	o.entries = append(o.entries, entity.OutboundMessage{
		LineID:      lineID,
		Destination: destination,
		Text:        text,
	})
}

func testCore(sessions *stubSessions, outbox *recordingOutbox) *Core {
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetSessionService(sessions)
	c.SetOutbox(outbox)
	return c
}

func TestSendTransportFailureQueuesMessage(t *testing.T) {
	outbox := &recordingOutbox{}
	c := testCore(&stubSessions{sent: true, err: errors.New("graph api: status 500")}, outbox)

	err := c.Send("line1", "5511999", "olá")

	require.NoError(t, err, "a transient transport failure is absorbed by the outbox")
	require.Len(t, outbox.entries, 1)
	assert.Equal(t, "line1", outbox.entries[0].LineID)
	assert.Equal(t, "5511999", outbox.entries[0].Destination)
	assert.Equal(t, "olá", outbox.entries[0].Text)
}

func TestSendNotReadyQueuesMessage(t *testing.T) {
	outbox := &recordingOutbox{}
	c := testCore(&stubSessions{sent: false}, outbox)

	require.NoError(t, c.Send("line1", "5511999", "oi"))
	require.Len(t, outbox.entries, 1)
}

func TestSendUnknownLineErrors(t *testing.T) {
	outbox := &recordingOutbox{}
	c := testCore(&stubSessions{sent: false, err: errors.New("line line9 not found")}, outbox)

	err := c.Send("line9", "5511999", "oi")

	require.Error(t, err)
	assert.Empty(t, outbox.entries, "nothing to retry against a line that does not exist")
}

func TestSendDeliveredSkipsOutbox(t *testing.T) {
	outbox := &recordingOutbox{}
	c := testCore(&stubSessions{sent: true}, outbox)

	require.NoError(t, c.Send("line1", "5511999", "oi"))
	assert.Empty(t, outbox.entries)
}
