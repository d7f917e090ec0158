package wlr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/wlturbo/wl"

	"github.com/waykeep/waykeep/internal/display"
	"github.com/waykeep/waykeep/internal/logger"
)

var (
	// ErrCommitFailed is returned when the compositor rejects a
	// configuration outright. The whole commit fails; no output changed.
	ErrCommitFailed = errors.New("compositor rejected the output configuration")

	// ErrCommitCancelled is returned when the output state changed under
	// the commit (stale serial). The caller sees the new state on the next
	// snapshot.
	ErrCommitCancelled = errors.New("output configuration cancelled by compositor")

	// ErrSessionClosed is returned from Next once the connection is gone.
	ErrSessionClosed = errors.New("wayland session closed")
)

const initialStateTimeout = 5 * time.Second

// Snapshot is the complete, consolidated state of all connected outputs at
// one point in time, as terminated by a protocol done event.
type Snapshot struct {
	Serial uint32
	Heads  []display.Head
}

// Session is the live protocol session. It accumulates per-head event
// bursts and publishes one consolidated snapshot per done event; commits go
// out as a single atomic configuration.
type Session struct {
	client  *client
	manager *outputManager
	version uint32

	mu     sync.RWMutex
	heads  map[uint32]*headState
	serial uint32
	err    error

	snaps chan Snapshot
	ready chan struct{}
	once  sync.Once
}

type headState struct {
	proxy    *outputHead
	identity display.Identity

	enabled       bool
	x, y          int32
	scale         float64
	transform     display.Transform
	adaptiveSync  bool
	currentModeID uint32
	modes         map[uint32]*modeState
}

type modeState struct {
	proxy     *outputMode
	mode      display.Mode
	preferred bool
}

// NewSession connects to the compositor, binds the output manager and
// blocks until the initial output state has been received. A compositor
// without zwlr_output_manager_v1 yields ErrUnsupported.
func NewSession(ctx context.Context) (*Session, error) {
	c, err := connect()
	if err != nil {
		return nil, err
	}

	name, version, err := c.outputManagerGlobal()
	if err != nil {
		_ = c.close()
		return nil, err
	}

	s := &Session{
		client:  c,
		version: version,
		heads:   make(map[uint32]*headState),
		snaps:   make(chan Snapshot, 1),
		ready:   make(chan struct{}),
	}

	s.manager = newOutputManager(c.context)
	s.manager.headHandler = s.handleHead
	s.manager.doneHandler = s.handleDone
	s.manager.finishedHandler = s.handleFinished

	if err := c.registry.Bind(name, outputManagerInterface, version, s.manager); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("bind %s: %w", outputManagerInterface, err)
	}

	go s.dispatchLoop(ctx)

	select {
	case <-s.ready:
	case <-time.After(initialStateTimeout):
		_ = s.Close()
		return nil, errors.New("timeout waiting for initial output state")
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}

	logger.Debug("output manager bound", "version", version)
	return s, nil
}

// dispatchLoop pumps protocol events. All head/mode state mutation happens
// on this goroutine.
func (s *Session) dispatchLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.client.close()
	}()
	for {
		if err := s.client.display.Dispatch(); err != nil {
			s.mu.Lock()
			if ctx.Err() != nil {
				s.err = ctx.Err()
			} else {
				s.err = err
			}
			s.mu.Unlock()
			close(s.snaps)
			return
		}
	}
}

// Next blocks until the next consolidated snapshot. It returns as soon as
// the compositor finishes a burst, or when ctx is cancelled.
func (s *Session) Next(ctx context.Context) ([]display.Head, error) {
	select {
	case snap, ok := <-s.snaps:
		if !ok {
			s.mu.RLock()
			err := s.err
			s.mu.RUnlock()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSessionClosed, err)
			}
			return nil, ErrSessionClosed
		}
		return snap.Heads, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Apply commits the desired configuration for all outputs as one atomic
// request and waits for the compositor's verdict. desired is keyed by
// layout key (display.Layout.Keys), so cloned hardware addresses each
// clone separately; a currently connected head missing from desired keeps
// its observed configuration, since the protocol requires every head to be
// configured before apply.
func (s *Session) Apply(ctx context.Context, desired map[string]display.Config) error {
	type target struct {
		hs   *headState
		want display.Config
	}

	s.mu.RLock()
	serial := s.serial
	states := make([]*headState, 0, len(s.heads))
	live := make(display.Layout, 0, len(s.heads))
	for _, hs := range s.heads {
		states = append(states, hs)
		live = append(live, display.Head{Identity: hs.identity})
	}
	keys := live.Keys()
	targets := make([]target, 0, len(states))
	for i, hs := range states {
		want, ok := desired[keys[i]]
		if !ok {
			want = s.observedConfig(hs)
		}
		targets = append(targets, target{hs: hs, want: want})
	}
	s.mu.RUnlock()

	cfg, err := s.manager.CreateConfiguration(serial)
	if err != nil {
		return fmt.Errorf("create configuration: %w", err)
	}
	defer func() {
		_ = cfg.Destroy()
	}()

	result := make(chan error, 1)
	cfg.succeededHandler = func() { result <- nil }
	cfg.failedHandler = func() { result <- ErrCommitFailed }
	cfg.cancelledHandler = func() { result <- ErrCommitCancelled }

	for _, t := range targets {
		if err := s.configureHead(cfg, t.hs, t.want); err != nil {
			return fmt.Errorf("configure %s: %w", t.hs.identity, err)
		}
	}

	if err := cfg.Apply(); err != nil {
		return fmt.Errorf("apply configuration: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) configureHead(cfg *outputConfiguration, hs *headState, want display.Config) error {
	if !want.Enabled {
		return cfg.DisableHead(hs.proxy)
	}

	ch, err := cfg.EnableHead(hs.proxy)
	if err != nil {
		return err
	}

	if mode := s.matchMode(hs, want.Mode); mode != nil {
		if err := ch.SetMode(mode.proxy); err != nil {
			return err
		}
	} else if err := ch.SetCustomMode(want.Mode.Width, want.Mode.Height, want.Mode.RefreshMHz); err != nil {
		return err
	}
	if err := ch.SetPosition(want.X, want.Y); err != nil {
		return err
	}
	if err := ch.SetTransform(int32(want.Transform)); err != nil {
		return err
	}
	scale := want.Scale
	if scale == 0 {
		scale = 1.0
	}
	if err := ch.SetScale(wl.NewFixed(scale)); err != nil {
		return err
	}
	if s.version >= 4 {
		var state uint32
		if want.AdaptiveSync {
			state = 1
		}
		if err := ch.SetAdaptiveSync(state); err != nil {
			return err
		}
	}
	return nil
}

// matchMode finds the advertised mode for the wanted geometry: an exact
// size+refresh match first, then the closest refresh at the same size.
// nil means the caller falls back to a custom mode.
func (s *Session) matchMode(hs *headState, want display.Mode) *modeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *modeState
	var bestDelta int32
	for _, ms := range hs.modes {
		if ms.mode.Width != want.Width || ms.mode.Height != want.Height {
			continue
		}
		if ms.mode.RefreshMHz == want.RefreshMHz {
			return ms
		}
		delta := ms.mode.RefreshMHz - want.RefreshMHz
		if delta < 0 {
			delta = -delta
		}
		if best == nil || delta < bestDelta {
			best = ms
			bestDelta = delta
		}
	}
	return best
}

// Close tears down the protocol session.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		if s.manager != nil {
			_ = s.manager.Stop()
		}
		err = s.client.close()
	})
	return err
}

// Event handlers. These run on the dispatch goroutine.

func (s *Session) handleHead(head *outputHead) {
	hs := &headState{
		proxy: head,
		scale: 1.0,
		modes: make(map[uint32]*modeState),
	}

	head.nameHandler = func(name string) {
		s.mu.Lock()
		hs.identity.Connector = name
		s.mu.Unlock()
	}
	head.makeHandler = func(mk string) {
		s.mu.Lock()
		hs.identity.Make = mk
		s.mu.Unlock()
	}
	head.modelHandler = func(model string) {
		s.mu.Lock()
		hs.identity.Model = model
		s.mu.Unlock()
	}
	head.serialNumberHandler = func(serial string) {
		s.mu.Lock()
		hs.identity.Serial = serial
		s.mu.Unlock()
	}
	head.enabledHandler = func(enabled int32) {
		s.mu.Lock()
		hs.enabled = enabled != 0
		s.mu.Unlock()
	}
	head.positionHandler = func(x, y int32) {
		s.mu.Lock()
		hs.x, hs.y = x, y
		s.mu.Unlock()
	}
	head.scaleHandler = func(scale wl.Fixed) {
		s.mu.Lock()
		hs.scale = scale.Float64()
		s.mu.Unlock()
	}
	head.transformHandler = func(transform int32) {
		s.mu.Lock()
		hs.transform = display.Transform(transform)
		s.mu.Unlock()
	}
	head.adaptiveSyncHandler = func(state uint32) {
		s.mu.Lock()
		hs.adaptiveSync = state == 1
		s.mu.Unlock()
	}
	head.currentModeHandler = func(modeID uint32) {
		s.mu.Lock()
		hs.currentModeID = modeID
		s.mu.Unlock()
	}
	head.modeHandler = func(mode *outputMode) {
		ms := &modeState{proxy: mode}
		mode.sizeHandler = func(width, height int32) {
			s.mu.Lock()
			ms.mode.Width, ms.mode.Height = width, height
			s.mu.Unlock()
		}
		mode.refreshHandler = func(refresh int32) {
			s.mu.Lock()
			ms.mode.RefreshMHz = refresh
			s.mu.Unlock()
		}
		mode.preferredHandler = func() {
			s.mu.Lock()
			ms.preferred = true
			s.mu.Unlock()
		}
		mode.finishedHandler = func() {
			s.mu.Lock()
			delete(hs.modes, mode.ID())
			s.mu.Unlock()
		}
		s.mu.Lock()
		hs.modes[mode.ID()] = ms
		s.mu.Unlock()
	}
	head.finishedHandler = func() {
		s.mu.Lock()
		delete(s.heads, head.ID())
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.heads[head.ID()] = hs
	s.mu.Unlock()
}

func (s *Session) handleDone(serial uint32) {
	s.mu.Lock()
	s.serial = serial
	snap := Snapshot{Serial: serial, Heads: s.snapshotHeadsLocked()}
	s.mu.Unlock()

	logger.Debug("output state done", "serial", serial, "heads", len(snap.Heads))
	s.publish(snap)
	s.signalReady()
}

func (s *Session) handleFinished() {
	logger.Warn("compositor finished the output manager")
}

func (s *Session) snapshotHeadsLocked() []display.Head {
	heads := make([]display.Head, 0, len(s.heads))
	for _, hs := range s.heads {
		if hs.identity.Connector == "" {
			// Head burst not complete yet; it will be in the next done.
			continue
		}
		heads = append(heads, display.Head{
			Identity: hs.identity,
			Config:   s.observedConfig(hs),
		})
	}
	sort.Slice(heads, func(a, b int) bool {
		return heads[a].Identity.Connector < heads[b].Identity.Connector
	})
	return heads
}

// observedConfig converts accumulated head state into a Config. Callers
// must hold s.mu or be on the dispatch goroutine.
func (s *Session) observedConfig(hs *headState) display.Config {
	cfg := display.Config{
		Enabled:      hs.enabled,
		X:            hs.x,
		Y:            hs.y,
		Scale:        hs.scale,
		Transform:    hs.transform,
		AdaptiveSync: hs.adaptiveSync,
	}
	if ms, ok := hs.modes[hs.currentModeID]; ok {
		cfg.Mode = ms.mode
	}
	return cfg
}

// publish replaces any unconsumed snapshot with the newer one; the
// reconciler only ever wants the latest complete state.
func (s *Session) publish(snap Snapshot) {
	for {
		select {
		case s.snaps <- snap:
			return
		default:
			select {
			case <-s.snaps:
			default:
			}
		}
	}
}

func (s *Session) signalReady() {
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
}
