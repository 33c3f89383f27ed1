package jackrack

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/jackrack/plugins"
)

// DispatcherOperation represents one queued control-path operation
type DispatcherOperation struct {
	Type     OperationType
	Data     interface{}
	Response chan DispatcherResult
}

// OperationType represents the type of dispatcher operation
type OperationType string

const (
	OpAddPlugin        OperationType = "add_plugin"
	OpRemovePlugin     OperationType = "remove_plugin"
	OpMovePlugin       OperationType = "move_plugin"
	OpReplacePlugin    OperationType = "replace_plugin"
	OpSetEnabled       OperationType = "set_enabled"
	OpSetWetDryEnabled OperationType = "set_wet_dry_enabled"
	OpSetWetDry        OperationType = "set_wet_dry"
	OpSetParameter     OperationType = "set_parameter"
)

// DispatcherResult represents the result of a dispatcher operation
type DispatcherResult struct {
	Success bool
	Data    interface{}
	Error   error
}

// Dispatcher serializes every control-path mutation of one Rack onto a
// single goroutine. That single goroutine is what makes the holders'
// queues single-producer and keeps chain edits from ever running
// concurrently with each other; the audio path runs against whatever chain
// state the last completed operation published.
type Dispatcher struct {
	rack    *Rack
	library plugins.Library
	errors  ErrorHandler

	mu         sync.RWMutex
	isRunning  bool
	operations chan DispatcherOperation
	stopChan   chan struct{}

	// nodes indexes linked plugins by ID; touched only from the dispatch
	// goroutine.
	nodes map[uuid.UUID]*Plugin

	// Performance tracking
	lastOperationDuration time.Duration
	maxOperationDuration  time.Duration
}

// NewDispatcher creates a dispatcher for rack, loading plugins through
// library. errors receives non-fatal operational complaints; nil selects
// the default zap-backed handler.
func NewDispatcher(rack *Rack, library plugins.Library, errors ErrorHandler) *Dispatcher {
	if errors == nil {
		errors = &DefaultErrorHandler{Logger: rack.logger}
	}
	return &Dispatcher{
		rack:                 rack,
		library:              library,
		errors:               errors,
		operations:           make(chan DispatcherOperation, 100),
		stopChan:             make(chan struct{}),
		nodes:                make(map[uuid.UUID]*Plugin),
		maxOperationDuration: 300 * time.Millisecond,
	}
}

// Start begins the dispatch loop for serialized rack edits
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dispatcher is already running")
	}

	d.isRunning = true
	go d.dispatchLoop()

	return nil
}

// Stop halts the dispatcher
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}

	close(d.stopChan)
	d.isRunning = false

	return nil
}

// IsRunning returns whether the dispatcher is active
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isRunning
}

// GetPerformanceStats returns dispatcher performance statistics
func (d *Dispatcher) GetPerformanceStats() (lastDuration, maxDuration time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOperationDuration, d.maxOperationDuration
}

// dispatchLoop runs the main dispatch loop for rack edits
func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.stopChan:
			return
		case op := <-d.operations:
			start := time.Now()
			result := d.executeOperation(op)
			duration := time.Since(start)

			d.mu.Lock()
			d.lastOperationDuration = duration
			if duration > d.maxOperationDuration {
				d.errors.HandleError(
					fmt.Errorf("rack edit %s took %v, target is sub-%v", op.Type, duration, d.maxOperationDuration))
			}
			d.mu.Unlock()

			op.Response <- result
		}
	}
}

// executeOperation executes a single dispatcher operation
func (d *Dispatcher) executeOperation(op DispatcherOperation) DispatcherResult {
	switch op.Type {
	case OpAddPlugin:
		desc := op.Data.(*plugins.Descriptor)
		p, err := d.addPlugin(desc)
		return DispatcherResult{Success: err == nil, Data: p, Error: err}

	case OpRemovePlugin:
		id := op.Data.(uuid.UUID)
		err := d.removePlugin(id)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpMovePlugin:
		data := op.Data.(movePluginData)
		err := d.movePlugin(data.ID, data.Up)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpReplacePlugin:
		data := op.Data.(replacePluginData)
		p, err := d.replacePlugin(data.ID, data.Desc)
		return DispatcherResult{Success: err == nil, Data: p, Error: err}

	case OpSetEnabled:
		data := op.Data.(setFlagData)
		err := d.withNode(data.ID, func(p *Plugin) { p.SetEnabled(data.Value) })
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetWetDryEnabled:
		data := op.Data.(setFlagData)
		err := d.withNode(data.ID, func(p *Plugin) { p.SetWetDryEnabled(data.Value) })
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetWetDry:
		data := op.Data.(setWetDryData)
		err := d.setWetDry(data)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetParameter:
		data := op.Data.(setParameterData)
		err := d.setParameter(data)
		return DispatcherResult{Success: err == nil, Error: err}

	default:
		return DispatcherResult{
			Success: false,
			Error:   fmt.Errorf("unknown operation type: %s", op.Type),
		}
	}
}

// Data structures for dispatcher operations
type movePluginData struct {
	ID uuid.UUID
	Up bool
}

type replacePluginData struct {
	ID   uuid.UUID
	Desc *plugins.Descriptor
}

type setFlagData struct {
	ID    uuid.UUID
	Value bool
}

type setWetDryData struct {
	ID      uuid.UUID
	Channel int
	Value   float32
}

type setParameterData struct {
	ID      uuid.UUID
	Copy    int
	Control int
	Value   float32
}

// submit queues an operation and waits for its result.
func (d *Dispatcher) submit(opType OperationType, data interface{}) DispatcherResult {
	response := make(chan DispatcherResult, 1)

	op := DispatcherOperation{
		Type:     opType,
		Data:     data,
		Response: response,
	}

	select {
	case d.operations <- op:
	case <-d.stopChan:
		return DispatcherResult{Error: fmt.Errorf("dispatcher stopped")}
	}

	select {
	case result := <-response:
		return result
	case <-d.stopChan:
		return DispatcherResult{Error: fmt.Errorf("dispatcher stopped")}
	}
}

// Public API methods that queue operations

// AddPlugin creates a node for desc and appends it to the chain
func (d *Dispatcher) AddPlugin(desc *plugins.Descriptor) (*Plugin, error) {
	result := d.submit(OpAddPlugin, desc)
	if result.Success {
		return result.Data.(*Plugin), nil
	}
	return nil, result.Error
}

// RemovePlugin unlinks and destroys the identified node
func (d *Dispatcher) RemovePlugin(id uuid.UUID) error {
	return d.submit(OpRemovePlugin, id).Error
}

// MovePlugin swaps the identified node with its neighbor
func (d *Dispatcher) MovePlugin(id uuid.UUID, up bool) error {
	return d.submit(OpMovePlugin, movePluginData{ID: id, Up: up}).Error
}

// ReplacePlugin exchanges the identified node for a fresh instance of desc
func (d *Dispatcher) ReplacePlugin(id uuid.UUID, desc *plugins.Descriptor) (*Plugin, error) {
	result := d.submit(OpReplacePlugin, replacePluginData{ID: id, Desc: desc})
	if result.Success {
		return result.Data.(*Plugin), nil
	}
	return nil, result.Error
}

// SetPluginEnabled flips a node between processing and bypass
func (d *Dispatcher) SetPluginEnabled(id uuid.UUID, enabled bool) error {
	return d.submit(OpSetEnabled, setFlagData{ID: id, Value: enabled}).Error
}

// SetWetDryEnabled switches a node's wet/dry blending
func (d *Dispatcher) SetWetDryEnabled(id uuid.UUID, enabled bool) error {
	return d.submit(OpSetWetDryEnabled, setFlagData{ID: id, Value: enabled}).Error
}

// SetWetDry queues a wet/dry mix change for one rack channel
func (d *Dispatcher) SetWetDry(id uuid.UUID, channel int, value float32) error {
	return d.submit(OpSetWetDry, setWetDryData{ID: id, Channel: channel, Value: value}).Error
}

// SetParameter queues a control value for one copy of a node. Under
// sustained rapid updates excess values are dropped, never blocked on.
func (d *Dispatcher) SetParameter(id uuid.UUID, copy, control int, value float32) error {
	return d.submit(OpSetParameter, setParameterData{ID: id, Copy: copy, Control: control, Value: value}).Error
}

// SampleRate returns the sample rate of the dispatcher's rack.
func (d *Dispatcher) SampleRate() int { return d.rack.sampleRate }

// Describe returns the descriptor of a linked node. Descriptors are
// immutable, so the result is safe to read from any goroutine.
func (d *Dispatcher) Describe(id uuid.UUID) (*plugins.Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.nodes[id]
	if !ok {
		return nil, false
	}
	return p.desc, true
}

// Internal implementation methods (executed within the dispatch goroutine)

func (d *Dispatcher) addPlugin(desc *plugins.Descriptor) (*Plugin, error) {
	p, err := NewPlugin(desc, d.library, d.rack)
	if err != nil {
		return nil, err
	}

	d.rack.Append(p)

	d.mu.Lock()
	d.nodes[p.id] = p
	d.mu.Unlock()

	return p, nil
}

func (d *Dispatcher) removePlugin(id uuid.UUID) error {
	p, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("plugin %s not found", id)
	}

	d.rack.Remove(p)

	d.mu.Lock()
	delete(d.nodes, id)
	d.mu.Unlock()

	// The unlinked node may still be visited by an in-flight block.
	d.rack.AwaitQuiescent()
	p.Destroy()
	return nil
}

func (d *Dispatcher) movePlugin(id uuid.UUID, up bool) error {
	p, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("plugin %s not found", id)
	}

	d.rack.Move(p, up)
	return nil
}

func (d *Dispatcher) replacePlugin(id uuid.UUID, desc *plugins.Descriptor) (*Plugin, error) {
	p, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s not found", id)
	}

	replacement, err := NewPlugin(desc, d.library, d.rack)
	if err != nil {
		return nil, err
	}

	d.rack.Replace(p, replacement)

	d.mu.Lock()
	delete(d.nodes, id)
	d.nodes[replacement.id] = replacement
	d.mu.Unlock()

	d.rack.AwaitQuiescent()
	p.Destroy()
	return replacement, nil
}

func (d *Dispatcher) setWetDry(data setWetDryData) error {
	p, ok := d.nodes[data.ID]
	if !ok {
		return fmt.Errorf("plugin %s not found", data.ID)
	}
	if data.Channel < 0 || data.Channel >= d.rack.channels {
		return fmt.Errorf("invalid rack channel %d", data.Channel)
	}

	p.SetWetDry(data.Channel, data.Value)
	return nil
}

func (d *Dispatcher) setParameter(data setParameterData) error {
	p, ok := d.nodes[data.ID]
	if !ok {
		return fmt.Errorf("plugin %s not found", data.ID)
	}
	if data.Copy < 0 || data.Copy >= p.copies {
		return fmt.Errorf("invalid copy %d for plugin %q", data.Copy, p.desc.Name)
	}
	if data.Control < 0 || data.Control >= len(p.desc.ControlPorts) {
		return fmt.Errorf("invalid control port %d for plugin %q", data.Control, p.desc.Name)
	}

	p.holders[data.Copy].PushControl(p, data.Control, data.Value)
	return nil
}

func (d *Dispatcher) withNode(id uuid.UUID, fn func(*Plugin)) error {
	p, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("plugin %s not found", id)
	}
	fn(p)
	return nil
}
