package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilesystemDetector_MergeOperations(t *testing.T) {
	tests := []struct {
		old, new, want ChangeOperation
	}{
		{OperationCreate, OperationUpdate, OperationCreate},
		{OperationCreate, OperationDelete, OperationDelete},
		{OperationUpdate, OperationUpdate, OperationUpdate},
		{OperationUpdate, OperationDelete, OperationDelete},
		{OperationDelete, OperationCreate, OperationCreate},
	}
	for _, tt := range tests {
		if got := mergeOperations(tt.old, tt.new); got != tt.want {
			t.Errorf("mergeOperations(%s, %s) = %s, want %s", tt.old, tt.new, got, tt.want)
		}
	}
}

func TestFilesystemDetector_StartStop(t *testing.T) {
	dir := t.TempDir()
	detector := NewFilesystemDetector(map[string][]Domain{
		filepath.Join(dir, "config.yaml"): AllDomains,
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan ChangeEvent, 10)
	if err := detector.Start(ctx, changes); err != nil {
		t.Fatalf("failed to start detector: %v", err)
	}
	if err := detector.Start(ctx, changes); err != nil {
		t.Errorf("second Start should be a no-op: %v", err)
	}
	if detector.GetSource() != SourceFilesystem {
		t.Errorf("expected source %s, got %s", SourceFilesystem, detector.GetSource())
	}
	if err := detector.Stop(); err != nil {
		t.Fatalf("failed to stop detector: %v", err)
	}
	if err := detector.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op: %v", err)
	}
}

func TestFilesystemDetector_MissingDirectory(t *testing.T) {
	detector := NewFilesystemDetector(map[string][]Domain{
		filepath.Join(t.TempDir(), "missing", "fleet.yaml"): {DomainAgentFleet},
	}, 0)
	if err := detector.Start(context.Background(), make(chan ChangeEvent, 1)); err == nil {
		_ = detector.Stop()
		t.Error("expected an error watching a missing directory")
	}
}

func TestFilesystemDetector_MapsFilesToDomains(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	fleetFile := filepath.Join(dir, "fleet.yaml")

	detector := NewFilesystemDetector(map[string][]Domain{
		configFile: AllDomains,
		fleetFile:  {DomainAgentFleet},
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan ChangeEvent, 10)
	if err := detector.Start(ctx, changes); err != nil {
		t.Fatalf("failed to start detector: %v", err)
	}
	defer detector.Stop()

	if err := os.WriteFile(fleetFile, []byte("agent/0: []\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	select {
	case event := <-changes:
		if event.Domain != DomainAgentFleet {
			t.Errorf("expected AgentFleet event, got %s", event.Domain)
		}
		if event.Source != SourceFilesystem || event.FilePath != fleetFile {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change event")
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	select {
	case event := <-changes:
		t.Errorf("unexpected event for unrelated file: %+v", event)
	case <-time.After(150 * time.Millisecond):
	}

	if err := os.WriteFile(configFile, []byte("remote: {}\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	seen := map[Domain]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-changes:
			seen[event.Domain] = true
		case <-timeout:
			t.Fatalf("timeout waiting for config change events, got %v", seen)
		}
	}
}

func TestFilesystemDetector_Debouncing(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	detector := NewFilesystemDetector(map[string][]Domain{configFile: {DomainPlugins}}, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan ChangeEvent, 10)
	if err := detector.Start(ctx, changes); err != nil {
		t.Fatalf("failed to start detector: %v", err)
	}
	defer detector.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(configFile, []byte("plugins: {}\n"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	if n := len(changes); n != 1 {
		t.Errorf("expected 1 debounced event, got %d", n)
	}
}
