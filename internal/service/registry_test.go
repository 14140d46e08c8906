package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start() error {
	*f.log = append(*f.log, "start "+f.name)
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.stopErr
}

func quietRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_StartStop(t *testing.T) {
	var log []string
	r := quietRegistry()
	for _, name := range []string{"http", "netrpc"} {
		if err := r.Register(&fakeService{name: name, log: &log}); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.StartAll(); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if r.Running() != 2 {
		t.Errorf("Running() = %d, want 2", r.Running())
	}

	r.StopAll(context.Background())
	r.StopAll(context.Background())

	want := []string{"start http", "start netrpc", "stop netrpc", "stop http"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("calls = %v, want %v", log, want)
	}
	if r.Running() != 0 {
		t.Errorf("Running() = %d, want 0", r.Running())
	}
}

func TestRegistry_StartFailureRollsBack(t *testing.T) {
	var log []string
	r := quietRegistry()
	_ = r.Register(&fakeService{name: "http", log: &log})
	_ = r.Register(&fakeService{name: "netrpc", log: &log, startErr: errors.New("address in use")})
	_ = r.Register(&fakeService{name: "static", log: &log})

	err := r.StartAll()
	if err == nil {
		t.Fatal("StartAll() expected error")
	}

	want := []string{"start http", "start netrpc", "stop http"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("calls = %v, want %v", log, want)
	}
	if r.Running() != 0 {
		t.Errorf("Running() = %d, want 0", r.Running())
	}
}

func TestRegistry_StopErrorDoesNotBlockOthers(t *testing.T) {
	var log []string
	r := quietRegistry()
	_ = r.Register(&fakeService{name: "a", log: &log})
	_ = r.Register(&fakeService{name: "b", log: &log, stopErr: errors.New("timeout")})

	if err := r.StartAll(); err != nil {
		t.Fatal(err)
	}
	r.StopAll(context.Background())

	want := []string{"start a", "start b", "stop b", "stop a"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("calls = %v, want %v", log, want)
	}
}

func TestRegistry_StopWithoutStart(t *testing.T) {
	var log []string
	r := quietRegistry()
	_ = r.Register(&fakeService{name: "a", log: &log})
	r.StopAll(context.Background())
	if len(log) != 0 {
		t.Errorf("unstarted service was stopped: %v", log)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	var log []string
	r := quietRegistry()
	_ = r.Register(&fakeService{name: "http", log: &log})
	err := r.Register(&fakeService{name: "http", log: &log})
	if !errors.Is(err, ErrDuplicateService) {
		t.Errorf("Register() error = %v, want ErrDuplicateService", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"http"}) {
		t.Errorf("Names() = %v", got)
	}
}
