package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	"github.com/kmn/visitor-kiosk/internal/mocks"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

type fakeLoginRecorder struct {
	mu      sync.Mutex
	records []model.LoginRecord
	err     error
}

func (f *fakeLoginRecorder) RecordLogin(_ context.Context, rec model.LoginRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func TestAuditDispatcher_DeliversToAllSinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAuditSink(ctrl)
	b := mocks.NewMockAuditSink(ctrl)

	var got []model.EventLog
	var mu sync.Mutex
	capture := func(_ context.Context, ev model.EventLog) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	}
	a.EXPECT().WriteEvent(gomock.Any(), gomock.Any()).DoAndReturn(capture)
	b.EXPECT().WriteEvent(gomock.Any(), gomock.Any()).Return(errors.New("collector down"))

	fixed := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	d := NewAuditDispatcher(AuditDispatcherOptions{
		Sinks: []ports.AuditSink{a, nil, b},
		Now:   func() time.Time { return fixed },
	})

	d.Emit(model.EventLog{EventType: " visit.create ", Level: "LOUD", Source: "robot"})
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, "visit.create", ev.EventType)
	assert.Equal(t, model.EventLevelInfo, ev.Level)
	assert.Equal(t, model.EventSourceClient, ev.Source)
	assert.NotEmpty(t, ev.CorrelationID)
	assert.Equal(t, fixed, ev.CreatedAt)
}

func TestAuditDispatcher_KeepsCorrelationID(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockAuditSink(ctrl)
	sink.EXPECT().WriteEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev model.EventLog) error {
			assert.Equal(t, "corr-1", ev.CorrelationID)
			return nil
		})

	d := NewAuditDispatcher(AuditDispatcherOptions{Sinks: []ports.AuditSink{sink}})
	d.Emit(model.EventLog{EventType: "x", CorrelationID: "corr-1"})
	require.NoError(t, d.Close(context.Background()))
}

func TestAuditDispatcher_LoginRecords(t *testing.T) {
	rec := &fakeLoginRecorder{err: errors.New("ignored")}
	d := NewAuditDispatcher(AuditDispatcherOptions{Logins: rec})

	dept := "Reception"
	d.EmitLogin(model.LoginRecord{UserName: "Ola", UserType: model.LoginUserEmployee, DepartmentName: &dept})
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, rec.records, 1)
	assert.Equal(t, "Ola", rec.records[0].UserName)
	assert.False(t, rec.records[0].CreatedAt.IsZero())
}

func TestAuditDispatcher_EmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	sink := auditSinkFunc(func(context.Context, model.EventLog) error {
		<-block
		return nil
	})
	d := NewAuditDispatcher(AuditDispatcherOptions{
		Sinks:     []ports.AuditSink{sink},
		QueueSize: 1,
		Workers:   1,
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Emit(model.EventLog{EventType: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
	close(block)
	require.NoError(t, d.Close(context.Background()))
}

func TestAuditDispatcher_EmitAfterClose(t *testing.T) {
	d := NewAuditDispatcher(AuditDispatcherOptions{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.NotPanics(t, func() { d.Emit(model.EventLog{EventType: "late"}) })
}

func TestAuditDispatcher_CloseHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sink := auditSinkFunc(func(context.Context, model.EventLog) error {
		<-block
		return nil
	})
	d := NewAuditDispatcher(AuditDispatcherOptions{Sinks: []ports.AuditSink{sink}, Workers: 1})
	d.Emit(model.EventLog{EventType: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

type auditSinkFunc func(ctx context.Context, ev model.EventLog) error

func (f auditSinkFunc) WriteEvent(ctx context.Context, ev model.EventLog) error { return f(ctx, ev) }
