// Package reconcile decides, for every consolidated output snapshot,
// whether to re-apply a saved layout or to persist what the compositor
// reports. It owns the echo suppression that keeps the daemon's own
// commits from being mistaken for user edits.
package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/waykeep/waykeep/internal/display"
	"github.com/waykeep/waykeep/internal/identity"
	"github.com/waykeep/waykeep/internal/logger"
	"github.com/waykeep/waykeep/internal/store"
)

// Session is the protocol boundary the reconciler drives. Next blocks for
// the next complete snapshot; Apply issues one atomic commit for all
// outputs together, keyed by the layout key (display.Layout.Keys).
type Session interface {
	Next(ctx context.Context) ([]display.Head, error)
	Apply(ctx context.Context, desired map[string]display.Config) error
}

// Options configures a Reconciler.
type Options struct {
	Store   *store.Store
	Session Session

	// ApplyCommand is run (via sh -c) after every accepted save and every
	// confirmed apply. Empty disables it.
	ApplyCommand string

	// Debounce coalesces snapshot bursts: after a snapshot arrives, any
	// newer one within this window replaces it before a decision is made.
	Debounce time.Duration
}

// pendingApply is the armed echo-suppression state, tied one-to-one to the
// most recent commit and cleared by the first snapshot that follows it.
type pendingApply struct {
	set     identity.SetID
	configs map[string]display.Config
}

// Reconciler runs the snapshot decision loop. All fields are owned by the
// single Run goroutine except storeDirty, which the store watcher flips.
type Reconciler struct {
	store    *store.Store
	session  Session
	debounce time.Duration

	applyCommand string
	runCommand   func(command string)

	lastSet identity.SetID
	hasLast bool
	pending *pendingApply

	storeDirty atomic.Bool
}

// New creates a Reconciler. The store and session stay owned by the caller
// for setup and teardown; the reconciler is their only user while Run is
// active.
func New(opts Options) *Reconciler {
	r := &Reconciler{
		store:        opts.Store,
		session:      opts.Session,
		debounce:     opts.Debounce,
		applyCommand: opts.ApplyCommand,
	}
	r.runCommand = runShellCommand
	return r
}

// MarkStoreChanged flags that the store file was edited externally. The
// loop reloads it before its next decision. Safe to call from any
// goroutine.
func (r *Reconciler) MarkStoreChanged() {
	r.storeDirty.Store(true)
}

// Run blocks on the session until ctx is cancelled or the session dies.
// Strictly sequential: one snapshot wait at a time, never two commits in
// flight.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		heads, err := r.session.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		heads = r.coalesce(ctx, heads)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.reconcile(ctx, heads)
	}
}

// coalesce keeps replacing the snapshot with any newer one arriving within
// the debounce window, so a hotplug burst becomes one decision.
func (r *Reconciler) coalesce(ctx context.Context, heads []display.Head) []display.Head {
	if r.debounce <= 0 {
		return heads
	}
	for {
		wait, cancel := context.WithTimeout(ctx, r.debounce)
		newer, err := r.session.Next(wait)
		cancel()
		if err != nil {
			return heads
		}
		heads = newer
	}
}

func (r *Reconciler) reconcile(ctx context.Context, heads []display.Head) {
	if r.storeDirty.Swap(false) {
		if err := r.store.Reload(); err != nil {
			logger.Warn("could not reload edited layout store; keeping in-memory state", "error", err)
		} else {
			logger.Info("layout store reloaded after external edit", "layouts", r.store.Len())
		}
	}

	_, setID := identity.Resolve(heads)
	observed := display.Layout(heads)

	if p := r.pending; p != nil {
		r.pending = nil
		if p.set == setID {
			r.lastSet, r.hasLast = setID, true
			if layoutMatches(observed, p.configs) {
				// Our own commit coming back. Not a user edit, no save.
				logger.Debug("commit confirmed by snapshot", "set", short(setID))
				r.invokeApplyCommand()
				return
			}
			// The compositor could not honor part of the request.
			// What it reports is the truth worth keeping; no retry.
			logger.Warn("applied layout did not stick; saving what the compositor reports", "set", short(setID))
			r.save(setID, observed)
			return
		}
		// The set changed while the commit was in flight (e.g. an unplug
		// raced the apply). Decide from scratch for the new set.
		logger.Debug("display set changed during apply", "was", short(p.set), "now", short(setID))
	}

	setAppeared := !r.hasLast || r.lastSet != setID
	r.lastSet, r.hasLast = setID, true

	stored, known := r.store.Get(setID)
	if !known {
		logger.Info("new display set", "set", short(setID), "heads", len(observed))
		r.save(setID, observed)
		return
	}

	if stored.Equal(observed) {
		logger.Debug("layout already in sync", "set", short(setID))
		return
	}

	if setAppeared {
		// A known set just (re)appeared with the wrong geometry: restore
		// the saved layout. Echo suppression arms with exactly this commit.
		desired := stored.Configs()
		if err := r.session.Apply(ctx, desired); err != nil {
			logger.Error("could not restore layout; waiting for next snapshot", "set", short(setID), "error", err)
			return
		}
		r.pending = &pendingApply{set: setID, configs: desired}
		logger.Info("restoring saved layout", "set", short(setID), "heads", len(stored))
		return
	}

	// Same set as the previous snapshot and not our echo: the user moved
	// something. Their edit wins over the stored layout.
	logger.Info("layout edited; saving", "set", short(setID), "heads", len(observed))
	r.save(setID, observed)
}

// save persists the layout. A write failure is non-fatal: the in-memory
// store stays authoritative and the next trigger retries.
func (r *Reconciler) save(setID identity.SetID, layout display.Layout) {
	r.store.Put(setID, layout)
	if err := r.store.Save(); err != nil {
		logger.Error("could not persist layout store", "error", err)
		return
	}
	r.invokeApplyCommand()
}

func (r *Reconciler) invokeApplyCommand() {
	if r.applyCommand == "" {
		return
	}
	r.runCommand(r.applyCommand)
}

// layoutMatches reports whether a snapshot is exactly the configuration of
// the most recent commit. Both sides address heads by layout key, so a
// clone pair matches pairwise instead of collapsing onto one entry.
func layoutMatches(observed display.Layout, configs map[string]display.Config) bool {
	if len(observed) != len(configs) {
		return false
	}
	keys := observed.Keys()
	for i, h := range observed {
		want, ok := configs[keys[i]]
		if !ok || !h.Config.Equal(want) {
			return false
		}
	}
	return true
}

// short trims a set ID for log lines.
func short(id identity.SetID) string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}
