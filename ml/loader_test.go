package ml

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestArtifact(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "model.json")
	if err := testEnsemble(t).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestLoaderLoadsOnce(t *testing.T) {
	path := writeTestArtifact(t, t.TempDir())
	loader := NewLoader(path)

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loader.Available() {
		t.Fatal("Available() = false after successful load")
	}
	first := loader.Model()
	if first == nil {
		t.Fatal("Model() = nil after successful load")
	}

	// The handle must survive the artifact disappearing from disk.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load after remove: %v", err)
	}
	if loader.Model() != first {
		t.Error("Model() handle changed between loads")
	}

	if _, err := first.PredictProba([]float64{0.0, 0.0}); err != nil {
		t.Errorf("PredictProba on cached model: %v", err)
	}
}

func TestLoaderMissingArtifact(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	if _, err := loader.Load(); err == nil {
		t.Fatal("Load: expected error for missing artifact")
	}
	if loader.Available() {
		t.Error("Available() = true for missing artifact")
	}
	if loader.Model() != nil {
		t.Error("Model() != nil for missing artifact")
	}
	if loader.Err() == nil {
		t.Error("Err() = nil for missing artifact")
	}
}

func TestLoaderCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err == nil {
		t.Fatal("Load: expected error for corrupt artifact")
	}
	if loader.Model() != nil {
		t.Error("Model() != nil for corrupt artifact")
	}
}

func TestLoaderFailureSticksUntilRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	loader := NewLoader(path)
	if _, err := loader.Load(); err == nil {
		t.Fatal("Load: expected error for missing artifact")
	}

	// A valid artifact appearing later does not revive this process.
	writeTestArtifact(t, dir)
	if _, err := loader.Load(); err == nil {
		t.Error("Load: failed state should persist until restart")
	}
	if loader.Available() {
		t.Error("Available() = true after earlier failure")
	}
}
