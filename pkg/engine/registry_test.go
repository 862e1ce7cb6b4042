package engine

import (
	"context"
	"testing"
)

func noopSpec(name string, deps ...string) ActionSpec {
	return ActionSpec{
		Name:         name,
		DependsOn:    deps,
		Precondition: func(*EnvironmentFacts, DesiredState) bool { return false },
		Apply:        func(context.Context, *EnvironmentFacts, DesiredState) error { return nil },
		Idempotent:   true,
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(noopSpec("a")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := reg.Register(noopSpec("a"))
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	var e *Error
	if !asEngineError(err, &e) || e.Code != CodeDuplicateAction {
		t.Errorf("error code = %v, want %s", err, CodeDuplicateAction)
	}
}

func TestRegisterRejectsNonIdempotent(t *testing.T) {
	reg := NewRegistry()
	spec := noopSpec("a")
	spec.Idempotent = false
	if err := reg.Register(spec); err == nil {
		t.Fatal("expected non-idempotent registration to fail")
	}
}

func TestRegisterRejectsCycle(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(noopSpec("a", "b")); err != nil {
		t.Fatalf("Register(a) failed: %v", err)
	}

	err := reg.Register(noopSpec("b", "a"))
	if err == nil {
		t.Fatal("expected cyclic registration to fail")
	}
	var e *Error
	if !asEngineError(err, &e) || e.Code != CodeCyclicDependency {
		t.Errorf("error code = %v, want %s", err, CodeCyclicDependency)
	}

	// The rejected spec must not linger in the catalog.
	if _, ok := reg.Get("b"); ok {
		t.Error("rejected spec still registered")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestValidateUnresolvedDependency(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(noopSpec("a", "ghost")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := reg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail on unresolved dependency")
	}
	var e *Error
	if !asEngineError(err, &e) || e.Code != CodeUnknownAction {
		t.Errorf("error code = %v, want %s", err, CodeUnknownAction)
	}
}

func asEngineError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
