package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestShutdownManagerRunsRegisteredFuncs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	server := &http.Server{Addr: "127.0.0.1:0"}
	manager := NewShutdownManager(logger, server, 5*time.Second)

	var calls int32
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- manager.WaitForShutdown() }()

	// Give WaitForShutdown time to install its signal handler.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send signal: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 shutdown funcs to run, got %d", calls)
	}
}

func TestShutdownManagerReportsFuncErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	manager := NewShutdownManager(logger, nil, 5*time.Second)
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("close failed")
	})

	done := make(chan error, 1)
	go func() { done <- manager.WaitForShutdown() }()

	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send signal: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected shutdown to report the failing func")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestMustRecover(t *testing.T) {
	if err := MustRecover(nil); err != nil {
		t.Errorf("nil panic value should produce nil error, got %v", err)
	}
	if err := MustRecover("boom"); err == nil {
		t.Error("panic value should produce an error")
	}
}
