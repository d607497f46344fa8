package artifacts

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewStore_DefaultsToFS(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(context.Background(), Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("Expected *FileStore, got %T", store)
	}

	expectedBase := filepath.Join(tmpDir, "artifacts")
	if fs.baseDir != expectedBase {
		t.Errorf("Expected baseDir %s, got %s", expectedBase, fs.baseDir)
	}
}

func TestNewStore_ExplicitFS(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(context.Background(), Config{StorageType: StoreTypeFS, DataDir: tmpDir})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("Expected *FileStore, got %T", store)
	}
}

func TestNewStore_S3MissingBucket(t *testing.T) {
	_, err := NewStore(context.Background(), Config{StorageType: StoreTypeS3})
	if err == nil {
		t.Fatal("Expected error for missing S3 bucket")
	}

	expectedMsg := "artifact S3 bucket is required"
	if !contains(err.Error(), expectedMsg) {
		t.Errorf("Expected error containing %q, got: %v", expectedMsg, err)
	}
}

func TestNewStore_GCSMissingBucket(t *testing.T) {
	_, err := NewStore(context.Background(), Config{StorageType: StoreTypeGCS})
	if err == nil {
		t.Fatal("Expected error for missing GCS bucket")
	}

	expectedMsg := "artifact GCS bucket is required"
	// If GCS is not enabled in this build, we get a different error, which is also valid behavior.
	if contains(err.Error(), "GCS storage is not enabled") {
		return
	}
	if !contains(err.Error(), expectedMsg) {
		t.Errorf("Expected error containing %q, got: %v", expectedMsg, err)
	}
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore(context.Background(), Config{StorageType: "azure"})
	if err == nil {
		t.Fatal("Expected error for unsupported storage type")
	}

	expectedMsg := "unsupported artifact storage type"
	if !contains(err.Error(), expectedMsg) {
		t.Errorf("Expected error containing %q, got: %v", expectedMsg, err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore(filepath.Join(tmpDir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	data := []byte("compute job output bytes")

	hash, err := store.Store(ctx, data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if hash[:7] != "sha256:" {
		t.Errorf("Expected hash to start with sha256:, got: %s", hash)
	}

	retrieved, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved) != string(data) {
		t.Errorf("Expected %q, got %q", data, retrieved)
	}
}

func TestFileStore_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore(filepath.Join(tmpDir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	data := []byte("idempotent data")

	hash1, err := store.Store(ctx, data)
	if err != nil {
		t.Fatalf("First store failed: %v", err)
	}

	hash2, err := store.Store(ctx, data)
	if err != nil {
		t.Fatalf("Second store failed: %v", err)
	}

	if hash1 != hash2 {
		t.Errorf("Expected same hash, got %s and %s", hash1, hash2)
	}
}

func TestFileStore_GetNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore(filepath.Join(tmpDir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	_, err = store.Get(ctx, "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("Expected error for non-existent artifact")
	}

	expectedMsg := "artifact not found"
	if !contains(err.Error(), expectedMsg) {
		t.Errorf("Expected error containing %q, got: %v", expectedMsg, err)
	}
}

func TestFileStore_InvalidHashFormat(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore(filepath.Join(tmpDir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	_, err = store.Get(ctx, "invalid-hash")
	if err == nil {
		t.Fatal("Expected error for invalid hash format")
	}

	expectedMsg := "invalid hash format"
	if !contains(err.Error(), expectedMsg) {
		t.Errorf("Expected error containing %q, got: %v", expectedMsg, err)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr, 0))
}

func containsAt(s, substr string, start int) bool {
	for i := start; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
