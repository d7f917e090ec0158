package wlr

import (
	"github.com/bnema/wlturbo/wl"
)

// Wire bindings for wlr-output-management-unstable-v1. Opcodes and event
// order follow the protocol XML; version 4 adds adaptive sync.
const (
	outputManagerInterface  = "zwlr_output_manager_v1"
	outputManagerMaxVersion = 4
)

// outputManager binds zwlr_output_manager_v1.
type outputManager struct {
	wl.BaseProxy
	headHandler     func(*outputHead)
	doneHandler     func(serial uint32)
	finishedHandler func()
}

func newOutputManager(ctx *wl.Context) *outputManager {
	m := &outputManager{}
	m.SetContext(ctx)
	return m
}

// CreateConfiguration starts a configuration change against the given
// snapshot serial.
func (m *outputManager) CreateConfiguration(serial uint32) (*outputConfiguration, error) {
	cfg := newOutputConfiguration(m.Context())

	// Opcode 0: create_configuration
	const opcode = 0
	if err := m.Context().SendRequest(m, opcode, cfg, serial); err != nil {
		m.Context().Unregister(cfg)
		return nil, err
	}
	return cfg, nil
}

// Stop asks the compositor to stop sending events.
func (m *outputManager) Stop() error {
	// Opcode 1: stop
	const opcode = 1
	return m.Context().SendRequest(m, opcode)
}

func (m *outputManager) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // head
		head := newOutputHead(m.Context())
		head.SetID(event.Uint32())
		m.Context().Register(head)
		if m.headHandler != nil {
			m.headHandler(head)
		}
	case 1: // done
		if m.doneHandler != nil {
			m.doneHandler(event.Uint32())
		}
	case 2: // finished
		if m.finishedHandler != nil {
			m.finishedHandler()
		}
		m.Context().Unregister(m)
	}
}

// outputHead binds zwlr_output_head_v1.
type outputHead struct {
	wl.BaseProxy
	nameHandler         func(string)
	descriptionHandler  func(string)
	physicalSizeHandler func(width, height int32)
	modeHandler         func(*outputMode)
	enabledHandler      func(int32)
	currentModeHandler  func(modeID uint32)
	positionHandler     func(x, y int32)
	transformHandler    func(int32)
	scaleHandler        func(wl.Fixed)
	makeHandler         func(string)
	modelHandler        func(string)
	serialNumberHandler func(string)
	adaptiveSyncHandler func(uint32)
	finishedHandler     func()
}

func newOutputHead(ctx *wl.Context) *outputHead {
	h := &outputHead{}
	h.SetContext(ctx)
	return h
}

// Release releases the head object (since version 3).
func (h *outputHead) Release() error {
	// Opcode 0: release
	const opcode = 0
	err := h.Context().SendRequest(h, opcode)
	h.Context().Unregister(h)
	return err
}

func (h *outputHead) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // name
		if h.nameHandler != nil {
			h.nameHandler(event.String())
		}
	case 1: // description
		if h.descriptionHandler != nil {
			h.descriptionHandler(event.String())
		}
	case 2: // physical_size
		if h.physicalSizeHandler != nil {
			width := event.Int32()
			height := event.Int32()
			h.physicalSizeHandler(width, height)
		}
	case 3: // mode
		mode := newOutputMode(h.Context())
		mode.SetID(event.Uint32())
		h.Context().Register(mode)
		if h.modeHandler != nil {
			h.modeHandler(mode)
		}
	case 4: // enabled
		if h.enabledHandler != nil {
			h.enabledHandler(event.Int32())
		}
	case 5: // current_mode
		if h.currentModeHandler != nil {
			h.currentModeHandler(event.Uint32())
		}
	case 6: // position
		if h.positionHandler != nil {
			x := event.Int32()
			y := event.Int32()
			h.positionHandler(x, y)
		}
	case 7: // transform
		if h.transformHandler != nil {
			h.transformHandler(event.Int32())
		}
	case 8: // scale
		if h.scaleHandler != nil {
			h.scaleHandler(wl.Fixed(event.Int32()))
		}
	case 9: // finished
		if h.finishedHandler != nil {
			h.finishedHandler()
		}
		h.Context().Unregister(h)
	case 10: // make (since version 2)
		if h.makeHandler != nil {
			h.makeHandler(event.String())
		}
	case 11: // model (since version 2)
		if h.modelHandler != nil {
			h.modelHandler(event.String())
		}
	case 12: // serial_number (since version 2)
		if h.serialNumberHandler != nil {
			h.serialNumberHandler(event.String())
		}
	case 13: // adaptive_sync (since version 4)
		if h.adaptiveSyncHandler != nil {
			h.adaptiveSyncHandler(event.Uint32())
		}
	}
}

// outputMode binds zwlr_output_mode_v1.
type outputMode struct {
	wl.BaseProxy
	sizeHandler      func(width, height int32)
	refreshHandler   func(int32)
	preferredHandler func()
	finishedHandler  func()
}

func newOutputMode(ctx *wl.Context) *outputMode {
	m := &outputMode{}
	m.SetContext(ctx)
	return m
}

// Release releases the mode object (since version 3).
func (m *outputMode) Release() error {
	// Opcode 0: release
	const opcode = 0
	err := m.Context().SendRequest(m, opcode)
	m.Context().Unregister(m)
	return err
}

func (m *outputMode) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // size
		if m.sizeHandler != nil {
			width := event.Int32()
			height := event.Int32()
			m.sizeHandler(width, height)
		}
	case 1: // refresh
		if m.refreshHandler != nil {
			m.refreshHandler(event.Int32())
		}
	case 2: // preferred
		if m.preferredHandler != nil {
			m.preferredHandler()
		}
	case 3: // finished
		if m.finishedHandler != nil {
			m.finishedHandler()
		}
		m.Context().Unregister(m)
	}
}

// outputConfiguration binds zwlr_output_configuration_v1. The compositor
// answers a commit with exactly one of succeeded, failed or cancelled.
type outputConfiguration struct {
	wl.BaseProxy
	succeededHandler func()
	failedHandler    func()
	cancelledHandler func()
}

func newOutputConfiguration(ctx *wl.Context) *outputConfiguration {
	c := &outputConfiguration{}
	c.SetContext(ctx)
	return c
}

// EnableHead marks a head enabled and returns the per-head configuration
// object its properties are set through.
func (c *outputConfiguration) EnableHead(head *outputHead) (*outputConfigurationHead, error) {
	cfgHead := newOutputConfigurationHead(c.Context())

	// Opcode 0: enable_head
	const opcode = 0
	if err := c.Context().SendRequest(c, opcode, cfgHead, head); err != nil {
		c.Context().Unregister(cfgHead)
		return nil, err
	}
	return cfgHead, nil
}

// DisableHead marks a head disabled.
func (c *outputConfiguration) DisableHead(head *outputHead) error {
	// Opcode 1: disable_head
	const opcode = 1
	return c.Context().SendRequest(c, opcode, head)
}

// Apply asks the compositor to apply the configuration atomically.
func (c *outputConfiguration) Apply() error {
	// Opcode 2: apply
	const opcode = 2
	return c.Context().SendRequest(c, opcode)
}

// Test asks the compositor to validate without applying.
func (c *outputConfiguration) Test() error {
	// Opcode 3: test
	const opcode = 3
	return c.Context().SendRequest(c, opcode)
}

// Destroy destroys the configuration object.
func (c *outputConfiguration) Destroy() error {
	// Opcode 4: destroy
	const opcode = 4
	err := c.Context().SendRequest(c, opcode)
	c.Context().Unregister(c)
	return err
}

func (c *outputConfiguration) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // succeeded
		if c.succeededHandler != nil {
			c.succeededHandler()
		}
	case 1: // failed
		if c.failedHandler != nil {
			c.failedHandler()
		}
	case 2: // cancelled
		if c.cancelledHandler != nil {
			c.cancelledHandler()
		}
	}
}

// outputConfigurationHead binds zwlr_output_configuration_head_v1. It has
// requests only, no events.
type outputConfigurationHead struct {
	wl.BaseProxy
}

func newOutputConfigurationHead(ctx *wl.Context) *outputConfigurationHead {
	h := &outputConfigurationHead{}
	h.SetContext(ctx)
	return h
}

// SetMode selects one of the head's advertised modes.
func (h *outputConfigurationHead) SetMode(mode *outputMode) error {
	// Opcode 0: set_mode
	const opcode = 0
	return h.Context().SendRequest(h, opcode, mode)
}

// SetCustomMode selects a mode the head did not advertise.
func (h *outputConfigurationHead) SetCustomMode(width, height, refresh int32) error {
	// Opcode 1: set_custom_mode
	const opcode = 1
	return h.Context().SendRequest(h, opcode, width, height, refresh)
}

// SetPosition places the head in the global compositor space.
func (h *outputConfigurationHead) SetPosition(x, y int32) error {
	// Opcode 2: set_position
	const opcode = 2
	return h.Context().SendRequest(h, opcode, x, y)
}

// SetTransform sets rotation/flipping.
func (h *outputConfigurationHead) SetTransform(transform int32) error {
	// Opcode 3: set_transform
	const opcode = 3
	return h.Context().SendRequest(h, opcode, transform)
}

// SetScale sets the output scale.
func (h *outputConfigurationHead) SetScale(scale wl.Fixed) error {
	// Opcode 4: set_scale
	const opcode = 4
	return h.Context().SendRequest(h, opcode, scale)
}

// SetAdaptiveSync toggles adaptive sync (since version 4).
func (h *outputConfigurationHead) SetAdaptiveSync(state uint32) error {
	// Opcode 5: set_adaptive_sync
	const opcode = 5
	return h.Context().SendRequest(h, opcode, state)
}

func (h *outputConfigurationHead) Dispatch(event *wl.Event) {
	// No events.
}
