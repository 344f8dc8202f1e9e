package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(Options{
		PollInterval: 10 * time.Millisecond,
		ReapGrace:    200 * time.Millisecond,
		KillGrace:    500 * time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m
}

func TestManager_SpawnAndObserve(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Spawn(SpawnSpec{
		AgentLabel: "alpha",
		Command:    []string{"sh", "-c", "echo hello; sleep 1"},
	})
	require.NoError(t, err)
	require.Contains(t, id, "alpha-")

	infos := m.List()
	require.Len(t, infos, 1)
	require.Equal(t, id, infos[0].ID)

	require.Eventually(t, func() bool {
		data, _, err := m.Snapshot(id, 0)
		return err == nil && strings.Contains(string(data), "hello")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestManager_ExitedSessionIsReapedAfterGrace(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Spawn(SpawnSpec{
		AgentLabel: "quickexit",
		Command:    []string{"sh", "-c", "exit 0"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := m.Get(id)
		return err == nil && info.Status.Kind == StatusExited
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := m.Get(id)
		_, ok := err.(*NotFoundError)
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestManager_WriteAndNudge(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Spawn(SpawnSpec{
		AgentLabel: "cat",
		Command:    []string{"cat"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Write(id, []byte("first\n")))
	require.NoError(t, m.Nudge(id))

	require.Eventually(t, func() bool {
		data, _, err := m.Snapshot(id, 0)
		return err == nil && strings.Contains(string(data), "first")
	}, time.Second, 20*time.Millisecond)

	require.NoError(t, m.Kill(id))
}

func TestManager_KillIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Spawn(SpawnSpec{AgentLabel: "sleepy", Command: []string{"sleep", "5"}})
	require.NoError(t, err)

	require.NoError(t, m.Kill(id))
	// Second kill addresses an id the manager no longer tracks; idempotent
	// means that's still a success, not an error.
	err = m.Kill(id)
	require.NoError(t, err)
}

func TestManager_BroadcastFiltersByLabelPrefix(t *testing.T) {
	m := newTestManager(t)

	idA, err := m.Spawn(SpawnSpec{AgentLabel: "team-a", Command: []string{"cat"}})
	require.NoError(t, err)
	idB, err := m.Spawn(SpawnSpec{AgentLabel: "team-b", Command: []string{"cat"}})
	require.NoError(t, err)

	n := m.Broadcast([]byte("ping\n"), FilterLabelPrefix("team-a"))
	require.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		data, _, _ := m.Snapshot(idA, 0)
		return strings.Contains(string(data), "ping")
	}, time.Second, 20*time.Millisecond)

	dataB, _, _ := m.Snapshot(idB, 0)
	require.NotContains(t, string(dataB), "ping")
}

func TestManager_GetUnknownSessionReturnsNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get("does-not-exist")
	require.Error(t, err)
	require.IsType(t, &NotFoundError{}, err)
}

func TestManager_SubscribeReceivesOutput(t *testing.T) {
	m := newTestManager(t)

	received := make(chan string, 8)
	subID := m.Subscribe(func(sessionID string, data []byte) {
		received <- string(data)
	})
	t.Cleanup(func() { m.Unsubscribe(subID) })

	_, err := m.Spawn(SpawnSpec{AgentLabel: "echoer", Command: []string{"sh", "-c", "echo from-fanout"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case chunk := <-received:
			return strings.Contains(chunk, "from-fanout")
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
