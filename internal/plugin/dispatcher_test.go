package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/store"
)

// recordingPlugin installs a plugin that appends each request to log.jsonl
// in its own directory.
func recordingPlugin(t *testing.T, root, name string, events ...string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := writeManifest(t, root, name, Manifest{Name: name, Executable: "run.sh", Events: events})
	script := `#!/bin/sh
cat >> log.jsonl
echo >> log.jsonl
echo '{"success":true}'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755))
	return filepath.Join(dir, "log.jsonl")
}

// lineCount counts complete lines in path. Safe to poll from Eventually.
func lineCount(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func readRequests(t *testing.T, path string) []Request {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var out []Request
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var req Request
		require.NoError(t, json.Unmarshal([]byte(line), &req))
		out = append(out, req)
	}
	return out
}

func TestDispatcher_RoutesEventsToSubscribers(t *testing.T) {
	root := t.TempDir()
	deviceLog := recordingPlugin(t, root, "devices", EventDevice)
	alertLog := recordingPlugin(t, root, "alerts", EventAlert)

	manager := NewManager(root)
	require.NoError(t, manager.Discover())
	d := NewDispatcher(manager, NewExecutor(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.DeviceChanged(device.Device{ID: 2, Name: "Light 2", On: true})
	d.Alert(store.SecurityEvent{ID: "e1", Kind: store.EventKindIntruder, Faces: 1})

	require.Eventually(t, func() bool {
		return lineCount(deviceLog) == 1 && lineCount(alertLog) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done

	devReq := readRequests(t, deviceLog)[0]
	assert.Equal(t, EventDevice, devReq.Event)
	require.NotNil(t, devReq.Device)
	assert.Equal(t, device.Device{ID: 2, Name: "Light 2", On: true}, *devReq.Device)
	assert.Nil(t, devReq.Alert)

	alertReq := readRequests(t, alertLog)[0]
	assert.Equal(t, EventAlert, alertReq.Event)
	require.NotNil(t, alertReq.Alert)
	assert.Equal(t, "e1", alertReq.Alert.ID)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	root := t.TempDir()
	deviceLog := recordingPlugin(t, root, "devices", EventDevice)

	manager := NewManager(root)
	require.NoError(t, manager.Discover())
	d := NewDispatcher(manager, NewExecutor(5*time.Second))

	d.DeviceChanged(device.Device{ID: 1, On: true})
	d.DeviceChanged(device.Device{ID: 1, On: false})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	reqs := readRequests(t, deviceLog)
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].Device.On)
	assert.False(t, reqs[1].Device.On)
}

func TestDispatcher_NoSubscribersQueuesNothing(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, manager.Discover())
	d := NewDispatcher(manager, NewExecutor(time.Second))

	for i := 0; i < dispatchQueueSize*2; i++ {
		d.DeviceChanged(device.Device{ID: 1})
	}
	assert.Zero(t, len(d.queue))
}
