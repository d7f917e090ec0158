// Package wlr speaks the wlr-output-management protocol to the compositor
// and presents it to the reconciler as a snapshot+commit session.
package wlr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/wlturbo/wl"
)

// ErrUnsupported is returned when the compositor does not advertise
// zwlr_output_manager_v1. The daemon cannot function without it.
var ErrUnsupported = errors.New("compositor does not support zwlr_output_manager_v1")

// client manages the Wayland connection and tracks the globals we need.
type client struct {
	display  *wl.Display
	registry *wl.Registry
	context  *wl.Context

	mu             sync.Mutex
	managerName    uint32
	managerVersion uint32
}

func connect() (*client, error) {
	display, err := wl.Connect("")
	if err != nil {
		return nil, fmt.Errorf("connect to Wayland: %w", err)
	}

	c := &client{
		display:  display,
		registry: display.Registry(),
		context:  display.Context(),
	}

	c.registry.AddHandler(outputManagerInterface, func(_ *wl.Registry, name uint32, version uint32) {
		c.mu.Lock()
		c.managerName = name
		c.managerVersion = version
		c.mu.Unlock()
	})

	// Globals are announced in response to get_registry; one roundtrip
	// after installing the handler sees them all.
	if err := display.Roundtrip(); err != nil {
		_ = display.Close()
		return nil, fmt.Errorf("initial roundtrip: %w", err)
	}

	return c, nil
}

func (c *client) outputManagerGlobal() (name, version uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.managerName == 0 {
		return 0, 0, ErrUnsupported
	}
	version = c.managerVersion
	if version > outputManagerMaxVersion {
		version = outputManagerMaxVersion
	}
	return c.managerName, version, nil
}

func (c *client) close() error {
	if c.display == nil {
		return nil
	}
	return c.display.Close()
}
