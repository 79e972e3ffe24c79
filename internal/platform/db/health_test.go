package db

import (
	"context"
	"errors"
	"testing"
)

func TestCheckDependencies(t *testing.T) {
	deps := map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return nil }),
		"queue": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}

	checks := CheckDependencies(context.Background(), deps)
	if checks["redis"] != "ok" {
		t.Errorf("expected redis ok, got %q", checks["redis"])
	}
	if checks["queue"] != "connection refused" {
		t.Errorf("expected queue failure text, got %q", checks["queue"])
	}
}

func TestCheckDependencies_None(t *testing.T) {
	checks := CheckDependencies(context.Background(), nil)
	if checks == nil || len(checks) != 0 {
		t.Errorf("expected empty non-nil map, got %#v", checks)
	}
}
