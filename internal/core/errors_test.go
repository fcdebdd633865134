package core

import (
	"errors"
	"testing"
)

func TestErrorCodeCombinesOperationAndReason(t *testing.T) {
	err := NotFound("records.read", "record_missing", errors.New("no such row"))

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *core.Error, got %T", err)
	}
	if typed.Code() != "records.read.record_missing" {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if typed.Error() != "records.read.record_missing: no such row" {
		t.Fatalf("unexpected message: %s", typed.Error())
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Validation("schema.create_field", "invalid_options", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
}

func TestKindOfClassifiesConstructors(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{NotFound("op", "r", nil), KindNotFound},
		{Forbidden("op", "r", nil), KindForbidden},
		{Validation("op", "r", nil), KindValidation},
		{Conflict("op", "r", nil), KindConflict},
		{Internal("op", "r", nil), KindUnknown},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.kind)
		}
	}
}

func TestPredicatesMatchOnlyTheirKind(t *testing.T) {
	notFound := NotFound("op", "r", nil)
	if !IsNotFound(notFound) {
		t.Fatalf("expected IsNotFound to match")
	}
	if IsForbidden(notFound) || IsValidation(notFound) || IsConflict(notFound) {
		t.Fatalf("expected other predicates to reject a not-found error")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := Forbidden("access.require", "insufficient_level", nil)
	wrapped := errors.Join(errors.New("outer"), inner)

	if !IsForbidden(wrapped) {
		t.Fatalf("expected forbidden kind through a wrapped chain")
	}
}
