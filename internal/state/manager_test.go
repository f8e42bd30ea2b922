package state

import (
	"context"
	"fmt"
	"testing"
)

func TestNewManager(t *testing.T) {
	mgr := setupTestManager(t)

	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}

	if mgr.GetDB() == nil {
		t.Error("Database should be initialized")
	}
}

func TestManager_SaveSystemState(t *testing.T) {
	mgr := setupTestManager(t)

	ctx := context.Background()

	err := mgr.SaveSystemState(ctx, "test_key", "test_value")
	if err != nil {
		t.Fatalf("SaveSystemState failed: %v", err)
	}

	value, err := mgr.GetSystemState(ctx, "test_key")
	if err != nil {
		t.Fatalf("GetSystemState failed: %v", err)
	}

	if value != "test_value" {
		t.Errorf("Expected 'test_value', got '%s'", value)
	}
}

func TestManager_GetSystemState_NotFound(t *testing.T) {
	mgr := setupTestManager(t)

	ctx := context.Background()

	value, err := mgr.GetSystemState(ctx, "nonexistent_key")
	if err != nil {
		t.Fatalf("GetSystemState failed: %v", err)
	}

	if value != "" {
		t.Errorf("Expected empty string for nonexistent key, got '%s'", value)
	}
}

func TestManager_SaveSystemState_Update(t *testing.T) {
	mgr := setupTestManager(t)

	ctx := context.Background()

	err := mgr.SaveSystemState(ctx, "test_key", "initial_value")
	if err != nil {
		t.Fatalf("SaveSystemState failed: %v", err)
	}

	err = mgr.SaveSystemState(ctx, "test_key", "updated_value")
	if err != nil {
		t.Fatalf("SaveSystemState update failed: %v", err)
	}

	value, err := mgr.GetSystemState(ctx, "test_key")
	if err != nil {
		t.Fatalf("GetSystemState failed: %v", err)
	}

	if value != "updated_value" {
		t.Errorf("Expected 'updated_value', got '%s'", value)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	mgr := setupTestManager(t)

	ctx := context.Background()

	done := make(chan bool, 10)

	// Concurrent writes
	for i := 0; i < 10; i++ {
		go func(idx int) {
			key := fmt.Sprintf("key_%d", idx)
			err := mgr.SaveSystemState(ctx, key, "value")
			if err != nil {
				t.Errorf("Concurrent SaveSystemState failed: %v", err)
			}
			done <- true
		}(i)
	}

	// Wait for all writes
	for i := 0; i < 10; i++ {
		<-done
	}

	// Verify all values were saved
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key_%d", i)
		value, err := mgr.GetSystemState(ctx, key)
		if err != nil {
			t.Errorf("GetSystemState failed for %s: %v", key, err)
		}
		if value != "value" {
			t.Errorf("Expected 'value' for %s, got '%s'", key, value)
		}
	}
}
