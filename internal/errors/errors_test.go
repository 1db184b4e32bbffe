// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "invalid controller endpoint")
	if err.Error() != "invalid controller endpoint" {
		t.Errorf("expected 'invalid controller endpoint', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to load config")
	if wrapped.Error() != "failed to load config: invalid controller endpoint" {
		t.Errorf("unexpected message: '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindValidation, "invalid port")
	if GetKind(err) != KindValidation {
		t.Errorf("expected KindValidation, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestUnwrap(t *testing.T) {
	inner := New(KindNotFound, "session not found")
	wrapped := Wrap(inner, KindInternal, "remove failed")

	if !Is(wrapped, inner) {
		t.Error("wrapped error should match inner via Is")
	}

	var e *Error
	if !As(wrapped, &e) {
		t.Fatal("As should find *Error in chain")
	}
	if e.Kind != KindInternal {
		t.Errorf("expected outermost KindInternal, got %v", e.Kind)
	}
}
