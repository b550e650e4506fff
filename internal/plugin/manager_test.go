package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root, dir string, manifest Manifest) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, ManifestName), manifestBytes, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return pluginDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writeManifest(t, tmpDir, "notify", Manifest{
		Name:        "notify",
		Version:     "1.0.0",
		Description: "Desktop notifications",
		Executable:  "notify",
		Events:      []string{EventDevice, EventAlert},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	plugin := plugins[0]
	if plugin.Manifest.Name != "notify" {
		t.Errorf("expected plugin name 'notify', got %q", plugin.Manifest.Name)
	}
	if plugin.Manifest.Description != "Desktop notifications" {
		t.Errorf("expected description, got %q", plugin.Manifest.Description)
	}
	if len(plugin.Manifest.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(plugin.Manifest.Events))
	}
	if plugin.Path != pluginDir {
		t.Errorf("expected path %q, got %q", pluginDir, plugin.Path)
	}
	if plugin.Executable != filepath.Join(pluginDir, "notify") {
		t.Errorf("expected executable inside the plugin dir, got %q", plugin.Executable)
	}
}

func TestManager_Subscribers(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "b", Manifest{Name: "bravo", Executable: "run", Events: []string{EventDevice}})
	writeManifest(t, tmpDir, "a", Manifest{Name: "alpha", Executable: "run", Events: []string{EventDevice, EventAlert}})
	writeManifest(t, tmpDir, "c", Manifest{Name: "charlie", Executable: "run", Events: []string{EventAlert}})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	names := func(ps []*Plugin) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Manifest.Name)
		}
		return out
	}

	if got := names(manager.List()); len(got) != 3 || got[0] != "alpha" || got[2] != "charlie" {
		t.Errorf("List() = %v, want sorted names", got)
	}
	if got := names(manager.Subscribers(EventDevice)); len(got) != 2 || got[0] != "alpha" || got[1] != "bravo" {
		t.Errorf("Subscribers(device) = %v", got)
	}
	if got := names(manager.Subscribers(EventAlert)); len(got) != 2 || got[0] != "alpha" || got[1] != "charlie" {
		t.Errorf("Subscribers(alert) = %v", got)
	}
	if got := manager.Subscribers("unknown"); len(got) != 0 {
		t.Errorf("Subscribers(unknown) = %v, want none", names(got))
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	bad := filepath.Join(tmpDir, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestName), []byte("{invalid json"), 0644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, tmpDir, "nameless", Manifest{Executable: "run"})
	writeManifest(t, tmpDir, "noexec", Manifest{Name: "noexec"})
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, tmpDir, "good", Manifest{Name: "good", Executable: "run"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "good" {
		t.Fatalf("expected only the valid plugin, got %d plugins", len(plugins))
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() should not fail for non-existent directory: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no plugins")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "notify", Manifest{Name: "notify", Executable: "notify"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugin, err := manager.Get("notify")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if plugin.Manifest.Name != "notify" {
		t.Errorf("expected plugin name 'notify', got %q", plugin.Manifest.Name)
	}

	if _, err := manager.Get("nonexistent"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_PluginDir(t *testing.T) {
	manager := NewManager("/some/plugin/dir")
	if manager.PluginDir() != "/some/plugin/dir" {
		t.Errorf("expected plugin dir '/some/plugin/dir', got %q", manager.PluginDir())
	}
}

func TestManifest_Handles(t *testing.T) {
	m := Manifest{Events: []string{EventAlert}}
	if !m.Handles(EventAlert) {
		t.Error("expected alert to be handled")
	}
	if m.Handles(EventDevice) {
		t.Error("expected device not to be handled")
	}
}
