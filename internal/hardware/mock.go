package hardware

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Mock is a thread-safe in-memory GPIO driver for testing and development.
// Pins are created on first lookup and start Low.
type Mock struct {
	mu   sync.Mutex
	pins map[string]*MockPin
}

// NewMock creates a new mock driver with no pins.
func NewMock() *Mock {
	return &Mock{pins: make(map[string]*MockPin)}
}

func (m *Mock) Init(ctx context.Context) error { return nil }

func (m *Mock) Pin(name string) (Pin, error) {
	return m.MockPin(name), nil
}

// MockPin returns the concrete mock pin so tests can drive its level.
func (m *Mock) MockPin(name string) *MockPin {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[name]
	if !ok {
		p = NewMockPin(name)
		m.pins[name] = p
	}
	return p
}

func (m *Mock) IsReal() bool { return false }

// MockPin is a settable input pin.
type MockPin struct {
	mu    sync.Mutex
	name  string
	level gpio.Level
	pull  gpio.Pull
	edge  gpio.Edge
	edges chan struct{}
}

// NewMockPin creates a Low pin with no pull and no edge detection.
func NewMockPin(name string) *MockPin {
	return &MockPin{
		name:  name,
		pull:  gpio.PullNoChange,
		edge:  gpio.NoEdge,
		edges: make(chan struct{}, 1),
	}
}

func (p *MockPin) Name() string { return p.name }

func (p *MockPin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pull = pull
	p.edge = edge
	if pull == gpio.PullUp {
		p.level = gpio.High
	}
	return nil
}

func (p *MockPin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Set drives the pin level and signals an edge if edge detection matches.
func (p *MockPin) Set(level gpio.Level) {
	p.mu.Lock()
	prev := p.level
	p.level = level
	edge := p.edge
	p.mu.Unlock()
	if prev == level {
		return
	}
	rising := level == gpio.High
	if edge == gpio.BothEdges || (edge == gpio.RisingEdge && rising) || (edge == gpio.FallingEdge && !rising) {
		select {
		case p.edges <- struct{}{}:
		default:
		}
	}
}

func (p *MockPin) WaitForEdge(timeout time.Duration) bool {
	if timeout < 0 {
		<-p.edges
		return true
	}
	select {
	case <-p.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Pull returns the pull configured by the last call to In.
func (p *MockPin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Edge returns the edge detection configured by the last call to In.
func (p *MockPin) Edge() gpio.Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edge
}
