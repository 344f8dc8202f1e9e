package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnProcess_EchoAndExit(t *testing.T) {
	p, err := spawnProcess("echo-1", SpawnSpec{
		AgentLabel: "echo",
		Command:    []string{"sh", "-c", "echo hi"},
	}, 4096, "", nil)
	require.NoError(t, err)
	defer p.close()

	require.Eventually(t, func() bool {
		p.readAvailable()
		data, _ := p.snapshot(0)
		return strings.Contains(string(data), "hi")
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return p.refreshStatus().Kind == StatusExited
	}, time.Second, 10*time.Millisecond)
}

func TestSpawnProcess_MissingWorkdirFails(t *testing.T) {
	_, err := spawnProcess("bad-1", SpawnSpec{
		AgentLabel: "bad",
		Command:    []string{"true"},
		WorkDir:    "/no/such/directory/at/all",
	}, 4096, "", nil)
	require.Error(t, err)
	require.IsType(t, &SpawnError{}, err)
}

func TestSpawnProcess_WriteAfterExitFails(t *testing.T) {
	p, err := spawnProcess("exit-1", SpawnSpec{
		AgentLabel: "exit",
		Command:    []string{"sh", "-c", "exit 0"},
	}, 4096, "", nil)
	require.NoError(t, err)
	defer p.close()

	require.Eventually(t, func() bool {
		return p.refreshStatus().Kind == StatusExited
	}, time.Second, 10*time.Millisecond)

	err = p.write([]byte("too late"))
	require.Error(t, err)
	require.IsType(t, &WriteError{}, err)
}

func TestSpawnProcess_ResizeRoundTrip(t *testing.T) {
	p, err := spawnProcess("resize-1", SpawnSpec{
		AgentLabel: "resize",
		Command:    []string{"cat"},
	}, 4096, "", nil)
	require.NoError(t, err)
	defer p.close()

	require.NoError(t, p.resize(120, 40))
	require.Equal(t, uint16(120), p.cols)
	require.Equal(t, uint16(40), p.rows)
}
