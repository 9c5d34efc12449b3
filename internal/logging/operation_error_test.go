package logging

import (
	"errors"
	"io/fs"
	"testing"
)

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorMessageAndUnwrap(t *testing.T) {
	err := NewOperationError("comparator.load_image", "req-1", fs.ErrNotExist)
	if got, want := err.Error(), "comparator.load_image [req-1]: file does not exist"; got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("expected wrapped error to match fs.ErrNotExist")
	}

	noID := NewOperationError("tools.invoke", "", errors.New("boom"))
	if got := noID.Error(); got != "tools.invoke: boom" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	WithOperation(logger, "test", "req").Debug("ok")
}
