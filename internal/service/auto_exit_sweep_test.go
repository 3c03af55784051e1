package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kmn/visitor-kiosk/config"
	"github.com/kmn/visitor-kiosk/internal/clock"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/facilitytime"
	"github.com/kmn/visitor-kiosk/internal/mocks"
	authmocks "github.com/kmn/visitor-kiosk/internal/mocks/auth"
	"github.com/kmn/visitor-kiosk/internal/observability/notify"
)

var sweepNow = time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)

type capturingNotifier struct {
	mu       sync.Mutex
	payloads []notify.FailurePayload
}

func (c *capturingNotifier) NotifyFailure(_ context.Context, p notify.FailurePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
}

func newSweep(t *testing.T, repo *mocks.MockVisitRepository, cfg config.AutoExitConfig, n FailureNotifier) *AutoExitSweepService {
	t.Helper()
	svc, err := NewAutoExitSweepService(AutoExitSweepServiceOptions{
		Visits:     repo,
		Zone:       facilitytime.UTC(),
		CutoffHour: 14,
		Config:     cfg,
		Clock:      clock.NewFake(sweepNow),
		Notifier:   n,
	})
	require.NoError(t, err)
	return svc
}

func openVisit(id int64, entry time.Time) model.Visit {
	notes := "badge returned late"
	return model.Visit{ID: id, EntryTime: entry, EmployeeID: 4, VisitorName: "Jan Kowalski", Notes: &notes, CreatedAt: entry}
}

func TestNewAutoExitSweepService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)

	_, err := NewAutoExitSweepService(AutoExitSweepServiceOptions{Zone: facilitytime.UTC()})
	require.Error(t, err)
	_, err = NewAutoExitSweepService(AutoExitSweepServiceOptions{Visits: repo})
	require.Error(t, err)
	_, err = NewAutoExitSweepService(AutoExitSweepServiceOptions{Visits: repo, Zone: facilitytime.UTC(), CutoffHour: -1})
	require.Error(t, err)
}

func TestAutoExitSweep_ExitTimeFor(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := newSweep(t, mocks.NewMockVisitRepository(ctrl), config.AutoExitConfig{}, nil)

	morning := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), svc.ExitTimeFor(morning))

	evening := time.Date(2025, 6, 2, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 23, 59, 59, 0, time.UTC), svc.ExitTimeFor(evening))

	lastSecond := time.Date(2025, 6, 2, 23, 59, 59, 500, time.UTC)
	assert.Equal(t, lastSecond, svc.ExitTimeFor(lastSecond))
}

func TestAutoExitSweep_NoCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	repo.EXPECT().ListOpen(gomock.Any()).Return(nil, nil)

	res, err := svc.Sweep(context.Background(), TriggerCron)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Count)
	assert.Equal(t, "No active visits to exit.", res.Message)
	assert.Equal(t, sweepNow, res.Timestamp)
}

func TestAutoExitSweep_ClosesAllCandidatesInBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{BatchSize: 2}, nil)

	open := []model.Visit{
		openVisit(1, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)),
		openVisit(2, time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)),
		openVisit(3, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)),
	}
	repo.EXPECT().ListOpen(gomock.Any()).Return(open, nil)

	var batches [][]model.Visit
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, vs []model.Visit) (int64, error) {
			batches = append(batches, append([]model.Visit(nil), vs...))
			return int64(len(vs)), nil
		})

	res, err := svc.Sweep(context.Background(), TriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "Auto-exited 3 visits.", res.Message)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)

	first := batches[0][0]
	assert.True(t, first.IsSystemExit)
	assert.Equal(t, time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC), *first.ExitTime)
	assert.Equal(t, "Jan Kowalski", first.VisitorName)
	assert.Equal(t, "badge returned late", *first.Notes)

	second := batches[0][1]
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC), *second.ExitTime)

	// Inputs are not mutated.
	assert.Nil(t, open[0].ExitTime)
}

func TestAutoExitSweep_LeavesVisitsInProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	// 08:00 today: the 14:00 cutoff has not been reached for this morning's visitor.
	repo.EXPECT().ListOpen(gomock.Any()).Return([]model.Visit{
		openVisit(1, sweepNow.Add(-15*time.Minute)),
	}, nil)
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Any()).Times(0)

	res, err := svc.Sweep(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Count)
}

func TestAutoExitSweep_ClosesOnlyDueVisits(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	repo.EXPECT().ListOpen(gomock.Any()).Return([]model.Visit{
		openVisit(1, sweepNow.Add(-15*time.Minute)),
		openVisit(2, time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)),
	}, nil)
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, vs []model.Visit) (int64, error) {
			require.Len(t, vs, 1)
			assert.Equal(t, int64(2), vs[0].ID)
			assert.Equal(t, time.Date(2025, 6, 2, 23, 59, 59, 0, time.UTC), *vs[0].ExitTime)
			assert.False(t, vs[0].ExitTime.After(sweepNow))
			return 1, nil
		})

	res, err := svc.Sweep(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestAutoExitSweep_AuditsAsVisitAutoExit(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	audit := &authmocks.RecordingAuditEmitter{}
	svc, err := NewAutoExitSweepService(AutoExitSweepServiceOptions{
		Visits:     repo,
		Zone:       facilitytime.UTC(),
		CutoffHour: 14,
		Clock:      clock.NewFake(sweepNow),
		Audit:      audit,
	})
	require.NoError(t, err)

	repo.EXPECT().ListOpen(gomock.Any()).Return([]model.Visit{
		openVisit(1, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)),
	}, nil)
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Any()).Return(int64(1), nil)

	_, err = svc.Sweep(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	require.Len(t, audit.Events(), 1)
	assert.Equal(t, "visit.auto_exit", audit.Events()[0].EventType)
	assert.Equal(t, model.EventSourceServer, audit.Events()[0].Source)
}

func TestAutoExitSweep_CountsOnlyRowsWritten(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	repo.EXPECT().ListOpen(gomock.Any()).Return([]model.Visit{
		openVisit(1, sweepNow.Add(-48*time.Hour)),
		openVisit(2, sweepNow.Add(-30*time.Hour)),
	}, nil)
	// Visit 2 was checked out by a human between list and upsert.
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Len(2)).Return(int64(1), nil)

	res, err := svc.Sweep(context.Background(), TriggerCron)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestAutoExitSweep_FailureNotifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	n := &capturingNotifier{}
	svc := newSweep(t, repo, config.AutoExitConfig{}, n)

	repo.EXPECT().ListOpen(gomock.Any()).Return([]model.Visit{openVisit(1, sweepNow.Add(-30*time.Hour))}, nil)
	repo.EXPECT().UpsertClosed(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("deadlock"))

	res, err := svc.Sweep(context.Background(), TriggerSchedule)
	require.Error(t, err)
	assert.True(t, apperrors.IsAutoExitUpdateFailure(err))
	assert.False(t, res.Success)

	require.Len(t, n.payloads, 1)
	assert.Equal(t, "auto_exit_sweep", n.payloads[0].Task)
	assert.Equal(t, TriggerSchedule, n.payloads[0].Trigger)
	assert.Equal(t, "1", n.payloads[0].Metadata["candidates"])
}

func TestAutoExitSweep_CancellationDoesNotNotify(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	n := &capturingNotifier{}
	svc := newSweep(t, repo, config.AutoExitConfig{}, n)

	repo.EXPECT().ListOpen(gomock.Any()).Return(nil, context.Canceled)

	_, err := svc.Sweep(context.Background(), TriggerSchedule)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, n.payloads)
}

func TestAutoExitSweep_ConcurrentCallsCoalesce(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	release := make(chan struct{})
	var lists atomic.Int32
	repo.EXPECT().ListOpen(gomock.Any()).DoAndReturn(func(context.Context) ([]model.Visit, error) {
		lists.Add(1)
		<-release
		return nil, nil
	}).MinTimes(1).MaxTimes(5)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Sweep(context.Background(), TriggerCron)
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, lists.Load(), int32(5))
}

func TestAutoExitSweep_Authorize(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)

	open := newSweep(t, repo, config.AutoExitConfig{}, nil)
	require.NoError(t, open.Authorize(""))

	gated := newSweep(t, repo, config.AutoExitConfig{CronSecret: "s3cret"}, nil)
	require.NoError(t, gated.Authorize("Bearer s3cret"))
	for _, h := range []string{"", "s3cret", "Bearer wrong", "Basic s3cret", "Bearer s3cret2"} {
		err := gated.Authorize(h)
		assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err), h)
	}
}

func TestAutoExitSweep_SystemExitsDefaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{}, nil)

	repo.EXPECT().ListSystemExits(gomock.Any(), model.SystemExitListOptions{
		From:  sweepNow.Add(-24 * time.Hour),
		To:    sweepNow,
		Limit: 100,
	}).Return([]model.Visit{openVisit(1, sweepNow).CloseBySystem(sweepNow)}, nil)

	visits, err := svc.SystemExits(context.Background(), model.SystemExitListOptions{})
	require.NoError(t, err)
	assert.Len(t, visits, 1)

	_, err = svc.SystemExits(context.Background(), model.SystemExitListOptions{From: sweepNow, To: sweepNow})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAutoExitSweep_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockVisitRepository(ctrl)
	svc := newSweep(t, repo, config.AutoExitConfig{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo.EXPECT().ListOpen(gomock.Any()).Return(nil, nil).AnyTimes()

	require.NoError(t, svc.Run(ctx))
}
