package events

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pitabwire/util"
)

// EventFunc adapts a plain function into an EventI that accepts any payload.
type EventFunc struct {
	EventName string
	Fn        func(ctx context.Context, payload any) error
}

func (e *EventFunc) Name() string {
	return e.EventName
}

func (e *EventFunc) Validate(_ context.Context, _ any) error {
	return nil
}

func (e *EventFunc) Execute(ctx context.Context, payload any) error {
	return e.Fn(ctx, payload)
}

type registration struct {
	evt EventI
}

type manager struct {
	mu            sync.RWMutex
	eventRegistry map[string][]*registration
}

func (m *manager) Add(evt EventI) func() {
	reg := &registration{evt: evt}

	m.mu.Lock()
	m.eventRegistry[evt.Name()] = append(m.eventRegistry[evt.Name()], reg)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.eventRegistry[evt.Name()] = slices.DeleteFunc(m.eventRegistry[evt.Name()], func(r *registration) bool {
				return r == reg
			})
		})
	}
}

func (m *manager) Listeners(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.eventRegistry[name])
}

// Emit delivers payload to every listener of name. Listener failures are logged and joined.
func (m *manager) Emit(ctx context.Context, name string, payload any) error {
	m.mu.RLock()
	listeners := slices.Clone(m.eventRegistry[name])
	m.mu.RUnlock()

	var errs []error
	for _, reg := range listeners {
		if err := reg.evt.Validate(ctx, payload); err != nil {
			util.Log(ctx).WithError(err).WithField("event", name).Error("event payload validation failed")
			errs = append(errs, err)
			continue
		}

		if err := reg.evt.Execute(ctx, payload); err != nil {
			util.Log(ctx).WithError(err).WithField("event", name).Error("event execution failed")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// NewManager creates an empty in-process event manager.
func NewManager() Manager {
	return &manager{
		eventRegistry: make(map[string][]*registration),
	}
}
