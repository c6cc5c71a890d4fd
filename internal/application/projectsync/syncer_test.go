package projectsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/testutil"
)

type fixture struct {
	handle   *testutil.FakeHandle
	saver    *testutil.RecordingSaver
	uploader *testutil.RecordingUploader
	rec      *testutil.StateRecorder
	syncer   *Syncer
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		handle:   testutil.NewFakeHandle(version.Current),
		saver:    &testutil.RecordingSaver{},
		uploader: &testutil.RecordingUploader{},
		rec:      &testutil.StateRecorder{},
	}
	f.syncer = NewSyncer(f.handle, Options{
		ProjectID:     "p1",
		Saver:         f.saver,
		Uploader:      f.uploader,
		DebounceDelay: delay,
		Logger:        logging.Discard(),
	})
	f.syncer.AddOnStateChangeListener(f.rec.Listen)
	t.Cleanup(f.syncer.Dispose)
	return f
}

func TestSyncer_HappyPath(t *testing.T) {
	f := newFixture(t, 0)

	testutil.AssertNoError(t, f.syncer.SyncNow(context.Background()))

	testutil.AssertEqual(t, f.saver.Saves(), 1)
	testutil.AssertEqual(t, f.uploader.Uploads(), 1)
	assertStates(t, f.rec.States(), syncstate.Writing, syncstate.Uploading, syncstate.Synced)
	testutil.AssertEqual(t, f.syncer.State().State, syncstate.Synced)
}

func TestSyncer_DeferredUpdateDuringUpload(t *testing.T) {
	f := newFixture(t, 0)
	f.uploader.OnUpload = f.handle.Touch

	testutil.AssertNoError(t, f.syncer.SyncAutomatically(context.Background(), 10))

	testutil.AssertEqual(t, f.saver.Saves(), 1)
	testutil.AssertEqual(t, f.uploader.Uploads(), 1)
	assertStates(t, f.rec.States(), syncstate.Writing, syncstate.Uploading, syncstate.Synced, syncstate.Dirty)
	testutil.AssertEqual(t, f.syncer.State().State, syncstate.Dirty)
}

func TestSyncer_LocalSaveFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.saver.Err = testutil.ErrBoom

	err := f.syncer.SyncNow(context.Background())

	testutil.AssertErrorIs(t, err, domainerrors.ErrLocalSaveFailed)
	testutil.AssertErrorIs(t, err, testutil.ErrBoom)
	testutil.AssertEqual(t, f.uploader.Uploads(), 0)
	assertStates(t, f.rec.States(), syncstate.Writing, syncstate.Error)

	snap := f.syncer.State()
	if snap.Err == nil || snap.Err.Code != domainerrors.CodeLocalSaveFailed {
		t.Errorf("state error = %v, want LOCAL_SAVE_FAILED", snap.Err)
	}
}

func TestSyncer_UploadFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.uploader.Err = testutil.ErrBoom

	err := f.syncer.SyncNow(context.Background())

	testutil.AssertErrorIs(t, err, domainerrors.ErrUploadFailed)
	assertStates(t, f.rec.States(), syncstate.Writing, syncstate.Uploading, syncstate.Error)
	testutil.AssertEqual(t, f.syncer.State().Err.Code, domainerrors.CodeUploadFailed)
}

func TestSyncer_ThresholdExceeded(t *testing.T) {
	f := newFixture(t, 0)
	f.uploader.Threshold = 100

	err := f.syncer.SyncAutomatically(context.Background(), 500)

	testutil.AssertErrorIs(t, err, domainerrors.ErrSyncThresholdExceeded)
	testutil.AssertEqual(t, f.uploader.Uploads(), 0)
	assertStates(t, f.rec.States(), syncstate.Writing, syncstate.Uploading, syncstate.Dirty)
	if f.syncer.Disposed() {
		t.Error("threshold breach must not dispose the syncer")
	}
	testutil.AssertEqual(t, f.handle.Listeners(), 1)

	// The unconditional path ignores the threshold.
	testutil.AssertNoError(t, f.syncer.SyncNow(context.Background()))
	testutil.AssertEqual(t, f.syncer.State().State, syncstate.Synced)
}

func TestSyncer_WorkspaceChangeMarksDirty(t *testing.T) {
	f := newFixture(t, 0)

	f.handle.Touch()

	assertStates(t, f.rec.States(), syncstate.Dirty)
	if f.syncer.AutoSyncEnabled() {
		t.Error("zero delay should disable automatic sync")
	}
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, f.saver.Saves(), 0)
}

func TestSyncer_DebouncedAutoSync(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)

	for i := 0; i < 5; i++ {
		f.handle.Touch()
		time.Sleep(5 * time.Millisecond)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return f.syncer.State().State == syncstate.Synced && f.uploader.Uploads() == 1
	})
	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, f.saver.Saves(), 1)
	testutil.AssertEqual(t, f.uploader.Uploads(), 1)
}

func TestSyncer_ThresholdCallbackOnAutoPath(t *testing.T) {
	handle := testutil.NewFakeHandle(version.Current)
	handle.Size = 1 << 20
	var called atomic.Int32

	s := NewSyncer(handle, Options{
		ProjectID:     "p1",
		Saver:         &testutil.RecordingSaver{},
		Uploader:      &testutil.RecordingUploader{Threshold: 1024},
		DebounceDelay: 10 * time.Millisecond,
		Logger:        logging.Discard(),
		OnThresholdExceeded: func(s *Syncer, err error) {
			called.Add(1)
			s.Dispose()
		},
	})
	defer s.Dispose()

	handle.Touch()

	testutil.Eventually(t, 2*time.Second, func() bool { return s.Disposed() })
	testutil.AssertEqual(t, called.Load(), int32(1))
	testutil.AssertEqual(t, s.State().State, syncstate.Dirty)
	testutil.AssertEqual(t, handle.Listeners(), 0)
}

func TestSyncer_DisposeIdempotent(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	testutil.AssertEqual(t, f.handle.Listeners(), 1)

	f.syncer.Dispose()
	f.syncer.Dispose()

	testutil.AssertEqual(t, f.handle.Listeners(), 0)
	f.handle.Touch()
	time.Sleep(40 * time.Millisecond)
	testutil.AssertEqual(t, f.saver.Saves(), 0)

	err := f.syncer.SyncNow(context.Background())
	testutil.AssertErrorIs(t, err, domainerrors.ErrOperationNotAllowed)
}

func TestSyncer_SyncNowDuringAutoSyncIsSerialized(t *testing.T) {
	f := newFixture(t, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	var first atomic.Bool
	f.uploader.OnUpload = func() {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- f.syncer.SyncAutomatically(context.Background(), 1) }()
	<-started

	done := make(chan error, 1)
	go func() { done <- f.syncer.SyncNow(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, f.saver.Saves(), 1)

	close(release)
	testutil.AssertNoError(t, <-errc)
	testutil.AssertNoError(t, <-done)

	assertStates(t, f.rec.States(),
		syncstate.Writing, syncstate.Uploading, syncstate.Synced,
		syncstate.Writing, syncstate.Uploading, syncstate.Synced)
}
