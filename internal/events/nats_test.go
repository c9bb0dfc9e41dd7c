package events

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func startEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:  "127.0.0.1",
		Port:  -1,
		NoLog: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded nats server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestNATSBridgeDeliversToQueue(t *testing.T) {
	nc := startEmbeddedNATS(t)
	q := &recordingQueue{}

	sub, err := Subscribe(nc, "test.teams.completed", "", q, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.NoError(t, nc.Flush())

	pub := NewNATSPublisher(nc, "test.teams.completed")
	require.NoError(t, pub.NotifyTeamComplete(context.Background(), "team-42"))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return len(q.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"team-42"}, q.Calls())
}

func TestNATSQueueGroupDeliversOnce(t *testing.T) {
	nc := startEmbeddedNATS(t)
	first := &recordingQueue{}
	second := &recordingQueue{}

	subA, err := Subscribe(nc, "test.group", "workers", first, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = subA.Close() })
	subB, err := Subscribe(nc, "test.group", "workers", second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = subB.Close() })
	require.NoError(t, nc.Flush())

	pub := NewNATSPublisher(nc, "test.group")
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, pub.NotifyTeamComplete(context.Background(), id))
	}
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return len(first.Calls())+len(second.Calls()) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNATSSubscriberIgnoresInvalidPayload(t *testing.T) {
	nc := startEmbeddedNATS(t)
	q := &recordingQueue{}

	sub, err := Subscribe(nc, "test.invalid", "", q, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.NoError(t, nc.Flush())

	require.NoError(t, nc.Publish("test.invalid", []byte("not json")))
	require.NoError(t, nc.Publish("test.invalid", []byte(`{"team_id":""}`)))
	require.NoError(t, NewNATSPublisher(nc, "test.invalid").NotifyTeamComplete(context.Background(), "ok"))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return len(q.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"ok"}, q.Calls())
}

func TestNATSPublisherRejectsEmptyID(t *testing.T) {
	nc := startEmbeddedNATS(t)
	err := NewNATSPublisher(nc, "").NotifyTeamComplete(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyTeamID)
}
