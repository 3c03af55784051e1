// Package mocks provides gomock mocks for the kiosk ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockVisitRepository(ctrl)
//	repo.EXPECT().ListOpen(gomock.Any()).Return(visits, nil)
package mocks

// VisitRepository: CloseOpenInWindow, ListOpen, UpsertClosed, ListSystemExits
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=visit_repository_mock.go github.com/kmn/visitor-kiosk/internal/ports VisitRepository

// AuditSink: WriteEvent
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_sink_mock.go github.com/kmn/visitor-kiosk/internal/ports AuditSink
