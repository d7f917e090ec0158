package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waykeep/waykeep/internal/display"
	"github.com/waykeep/waykeep/internal/identity"
	"github.com/waykeep/waykeep/internal/store"
)

type fakeSession struct {
	snaps    chan []display.Head
	applies  []map[string]display.Config
	applyErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{snaps: make(chan []display.Head, 8)}
}

func (f *fakeSession) Next(ctx context.Context) ([]display.Head, error) {
	select {
	case heads := <-f.snaps:
		return heads, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSession) Apply(_ context.Context, desired map[string]display.Config) error {
	f.applies = append(f.applies, desired)
	return f.applyErr
}

func headAt(connector, serial string, x, y int32) display.Head {
	return display.Head{
		Identity: display.Identity{Connector: connector, Make: "Dell", Model: "U2415", Serial: serial},
		Config: display.Config{
			Enabled: true,
			Mode:    display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
			X:       x,
			Y:       y,
			Scale:   1.0,
		},
	}
}

type fixture struct {
	rec      *Reconciler
	session  *fakeSession
	store    *store.Store
	commands int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Load(filepath.Join(t.TempDir(), "layouts.json"))
	require.NoError(t, err)

	f := &fixture{session: newFakeSession(), store: st}
	f.rec = New(Options{
		Store:        st,
		Session:      f.session,
		ApplyCommand: "notify-send done",
	})
	f.rec.runCommand = func(string) { f.commands++ }
	return f
}

func TestNovelSetSavedOnceWithZeroCommits(t *testing.T) {
	f := newFixture(t)
	heads := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}

	f.rec.reconcile(context.Background(), heads)

	_, setID := identity.Resolve(heads)
	saved, ok := f.store.Get(setID)
	require.True(t, ok, "a never-seen set must be saved")
	assert.True(t, display.Layout(heads).Equal(saved))
	assert.Empty(t, f.session.applies, "a novel set must not trigger a commit")
	assert.Equal(t, 1, f.commands, "apply command runs after the save")
}

func TestKnownSetRestoredAndEchoNotSaved(t *testing.T) {
	f := newFixture(t)

	stored := display.Layout{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	// The set appears with the wrong geometry: restore.
	observed := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), observed)

	require.Len(t, f.session.applies, 1, "a known set appearing with stale geometry is restored")
	wantB := stored[1].Config
	gotB, ok := f.session.applies[0][stored[1].Identity.Key()]
	require.True(t, ok)
	assert.True(t, wantB.Equal(gotB), "the stored config is what gets committed")
	assert.Equal(t, 0, f.commands, "apply command waits for commit confirmation")

	// The commit comes back as a snapshot: an echo, not a user edit.
	echo := []display.Head{stored[0], stored[1]}
	f.rec.reconcile(context.Background(), echo)

	assert.Len(t, f.session.applies, 1, "an echo must not re-apply")
	inStore, _ := f.store.Get(setID)
	assert.True(t, stored.Equal(inStore), "an echo must not overwrite the stored layout")
	assert.Equal(t, 1, f.commands, "apply command runs once the commit is confirmed")
}

func TestKnownSetAlreadyInSyncDoesNothing(t *testing.T) {
	f := newFixture(t)

	stored := display.Layout{headAt("DP-1", "1", 0, 0)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	f.rec.reconcile(context.Background(), []display.Head{stored[0]})

	assert.Empty(t, f.session.applies)
	assert.Equal(t, 0, f.commands)
}

func TestUserEditSavesExactlyOnce(t *testing.T) {
	f := newFixture(t)

	heads := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), heads) // learn the set

	// The user drags DP-2 below DP-1 with some external tool. Same set,
	// no commit of ours in flight: this is an edit to keep.
	edited := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	f.rec.reconcile(context.Background(), edited)

	_, setID := identity.Resolve(edited)
	saved, ok := f.store.Get(setID)
	require.True(t, ok)
	assert.True(t, display.Layout(edited).Equal(saved), "the user edit overwrites the stored layout")
	assert.Empty(t, f.session.applies, "a user edit must never be fought with a re-apply")
	assert.Equal(t, 2, f.commands)
}

func TestRejectedCommitFallsBackToObservedTruth(t *testing.T) {
	f := newFixture(t)
	f.session.applyErr = errors.New("compositor rejected the output configuration")

	stored := display.Layout{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	observed := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), observed)

	require.Len(t, f.session.applies, 1)
	inStore, _ := f.store.Get(setID)
	assert.True(t, stored.Equal(inStore), "a rejected commit does not touch the store yet")

	// Next natural snapshot still disagrees; no echo is armed, so the
	// compositor's state is persisted instead of retrying forever.
	f.rec.reconcile(context.Background(), observed)

	assert.Len(t, f.session.applies, 1, "no synchronous retry after a rejected commit")
	inStore, _ = f.store.Get(setID)
	assert.True(t, display.Layout(observed).Equal(inStore), "observed truth wins after a rejected commit")
}

func TestPartiallyHonoredCommitSavesObserved(t *testing.T) {
	f := newFixture(t)

	stored := display.Layout{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	observed := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), observed)
	require.Len(t, f.session.applies, 1)

	// The commit succeeded but the snapshot that follows is not what we
	// asked for: the compositor could not honor part of it.
	sticky := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), sticky)

	assert.Len(t, f.session.applies, 1, "compositor truth is not re-fought")
	inStore, _ := f.store.Get(setID)
	assert.True(t, display.Layout(sticky).Equal(inStore))
}

func TestSetChangeDuringApplyDecidesFresh(t *testing.T) {
	f := newFixture(t)

	stored := display.Layout{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	observed := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	f.rec.reconcile(context.Background(), observed)
	require.Len(t, f.session.applies, 1)

	// DP-2 was unplugged while the commit was in flight. The echo never
	// arrives; the single-head set is novel and gets saved on its own.
	solo := []display.Head{headAt("DP-1", "1", 0, 0)}
	f.rec.reconcile(context.Background(), solo)

	_, soloID := identity.Resolve(solo)
	savedSolo, ok := f.store.Get(soloID)
	require.True(t, ok)
	assert.True(t, display.Layout(solo).Equal(savedSolo))

	inStore, _ := f.store.Get(setID)
	assert.True(t, stored.Equal(inStore), "the interrupted set's stored layout stays intact")
}

// TestHotplugScenario walks the full lifecycle: learn a new pair, keep a
// user edit, learn the laptop-only set after an unplug, and restore the
// edited pair when the second display returns.
func TestHotplugScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a0 := headAt("DP-1", "1", 0, 0)
	bRight := headAt("DP-2", "2", 1920, 0)
	bBelow := headAt("DP-2", "2", 0, 1080)

	// First sight of {A, B}: recorded as-is.
	f.rec.reconcile(ctx, []display.Head{a0, bRight})
	_, pairID := identity.Resolve([]display.Head{a0, bRight})
	saved, _ := f.store.Get(pairID)
	require.True(t, display.Layout{a0, bRight}.Equal(saved))

	// The user drags B below A: saved, overwriting the pair's entry.
	f.rec.reconcile(ctx, []display.Head{a0, bBelow})
	saved, _ = f.store.Get(pairID)
	require.True(t, display.Layout{a0, bBelow}.Equal(saved))
	require.Empty(t, f.session.applies)

	// B unplugged: {A} alone is novel, saved separately.
	f.rec.reconcile(ctx, []display.Head{a0})
	_, soloID := identity.Resolve([]display.Head{a0})
	_, ok := f.store.Get(soloID)
	require.True(t, ok)
	require.NotEqual(t, pairID, soloID)

	// B returns, compositor places it at its old default: waykeep
	// restores the edited geometry.
	f.rec.reconcile(ctx, []display.Head{a0, bRight})
	require.Len(t, f.session.applies, 1)
	gotB, ok := f.session.applies[0][bBelow.Identity.Key()]
	require.True(t, ok)
	assert.EqualValues(t, 0, gotB.X)
	assert.EqualValues(t, 1080, gotB.Y)

	// And the echo of that restore is not mistaken for an edit.
	f.rec.reconcile(ctx, []display.Head{a0, bBelow})
	saved, _ = f.store.Get(pairID)
	assert.True(t, display.Layout{a0, bBelow}.Equal(saved))
	assert.Len(t, f.session.applies, 1)
}

func TestClonePairRestoredDistinctly(t *testing.T) {
	f := newFixture(t)

	// Two physically identical displays: same make, model and serial.
	cloneAt := func(connector string, x int32) display.Head {
		return display.Head{
			Identity: display.Identity{Connector: connector, Make: "Dell", Model: "U2415", Serial: "0"},
			Config: display.Config{
				Enabled: true,
				Mode:    display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
				X:       x,
				Scale:   1.0,
			},
		}
	}

	stored := display.Layout{cloneAt("DP-1", 0), cloneAt("DP-2", 1920)}
	setID := identity.SetIDOf(stored)
	f.store.Put(setID, stored)
	require.NoError(t, f.store.Save())

	// The pair comes back stacked at the origin: restore must address each
	// clone separately, not hand both the same config.
	observed := []display.Head{cloneAt("DP-1", 0), cloneAt("DP-2", 0)}
	f.rec.reconcile(context.Background(), observed)

	require.Len(t, f.session.applies, 1)
	desired := f.session.applies[0]
	require.Len(t, desired, 2, "clone pair must not collapse to one config entry")
	keys := stored.Keys()
	assert.EqualValues(t, 0, desired[keys[0]].X)
	assert.EqualValues(t, 1920, desired[keys[1]].X)

	// The echo of that commit is recognized for the clone set too.
	f.rec.reconcile(context.Background(), []display.Head{stored[0], stored[1]})
	assert.Len(t, f.session.applies, 1, "a clone-set echo must not re-apply")
	inStore, _ := f.store.Get(setID)
	assert.True(t, stored.Equal(inStore), "a clone-set echo must not overwrite the stored layout")
}

func TestRunCoalescesBursts(t *testing.T) {
	st, err := store.Load(filepath.Join(t.TempDir(), "layouts.json"))
	require.NoError(t, err)

	session := newFakeSession()
	rec := New(Options{
		Store:        st,
		Session:      session,
		ApplyCommand: "notify-send done",
		Debounce:     50 * time.Millisecond,
	})
	// The injected command runner doubles as the save signal, so the test
	// never reads the store while the Run goroutine still owns it.
	saved := make(chan struct{}, 1)
	rec.runCommand = func(string) { saved <- struct{}{} }

	// Two snapshots in one burst: only the second should be acted on.
	transient := []display.Head{headAt("DP-1", "1", 0, 0)}
	settled := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	session.snaps <- transient
	session.snaps <- settled

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("burst was never reconciled")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Run has returned; the store is ours to inspect again.
	assert.Equal(t, 1, st.Len(), "one decision per burst")
	_, transientID := identity.Resolve(transient)
	_, settledID := identity.Resolve(settled)
	_, ok := st.Get(transientID)
	assert.False(t, ok, "the transient snapshot should be debounced away")
	_, ok = st.Get(settledID)
	assert.True(t, ok, "the settled snapshot is the one saved")
}

func TestMarkStoreChangedReloadsBeforeDeciding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.json")
	st, err := store.Load(path)
	require.NoError(t, err)

	session := newFakeSession()
	rec := New(Options{Store: st, Session: session})

	// Another process (or the user's editor) writes a layout for the pair
	// while our in-memory store is still empty.
	edited := display.Layout{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 0, 1080)}
	setID := identity.SetIDOf(edited)
	other, err := store.Load(path)
	require.NoError(t, err)
	other.Put(setID, edited)
	require.NoError(t, other.Save())

	rec.MarkStoreChanged()

	// The set appears with different geometry: after the reload the set
	// is known, so the edited layout is applied rather than overwritten.
	observed := []display.Head{headAt("DP-1", "1", 0, 0), headAt("DP-2", "2", 1920, 0)}
	rec.reconcile(context.Background(), observed)

	require.Len(t, session.applies, 1, "the hand-edited layout should be restored")
	got, ok := session.applies[0][edited[1].Identity.Key()]
	require.True(t, ok)
	assert.EqualValues(t, 1080, got.Y)
}

// Guard against the os/exec runner being wired out of tests by accident:
// the default runner must survive an empty PATH without panicking.
func TestRunShellCommandBadCommand(t *testing.T) {
	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)

	runShellCommand("definitely-not-a-real-binary-for-waykeep")
	// Nothing to assert: the command is fire-and-forget and failure is
	// only logged. The test passes by not panicking or blocking.
}
