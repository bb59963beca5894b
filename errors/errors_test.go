package errors

import (
	"fmt"
	"testing"
)

func TestIndexError(t *testing.T) {
	err := New(ErrCodeEntityNotFound, "space not found")
	if err.Code != ErrCodeEntityNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEntityNotFound, err.Code)
	}

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeStorageFailed, "read failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeStorageFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeEntityNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("space", "/docs").WithDetail("rows", 3)
	if detailed.Details["space"] != "/docs" {
		t.Error("WithDetail should add details")
	}
}

func TestIsLooksThroughJobFailures(t *testing.T) {
	cycle := DependencyCycle([]string{"a", "b", "a"})
	err := JobFailed("parse_context", "/docs", cycle)

	if !Is(err, ErrCodeJobFailed) {
		t.Error("expected JOB_FAILED code")
	}
	if !Is(err, ErrCodeDependencyCycle) {
		t.Error("expected the wrapped cycle to be visible through Is")
	}
	if GetCode(err) != ErrCodeJobFailed {
		t.Errorf("GetCode should return the outer code, got %s", GetCode(err))
	}
	if GetCode(fmt.Errorf("ctx: %w", cycle)) != ErrCodeDependencyCycle {
		t.Error("GetCode should unwrap fmt wrappers")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := EntityNotFound("space", "/docs")
	if err.Code != ErrCodeEntityNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEntityNotFound, err.Code)
	}
	if err.Details["path"] != "/docs" {
		t.Error("EntityNotFound should include path detail")
	}

	err = StorageFailed("save_table", "/docs", fmt.Errorf("disk full"))
	if err.Code != ErrCodeStorageFailed {
		t.Errorf("expected code %s, got %s", ErrCodeStorageFailed, err.Code)
	}
	if err.Details["op"] != "save_table" {
		t.Error("StorageFailed should include op detail")
	}
}
