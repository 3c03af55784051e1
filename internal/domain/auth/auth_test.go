package auth

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"user", RoleUser, true},
		{" Admin ", RoleAdmin, true},
		{"department_admin", RoleDepartmentAdmin, true},
		{"guest", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRole_IsAdminLike(t *testing.T) {
	if !RoleAdmin.IsAdminLike() || !RoleDepartmentAdmin.IsAdminLike() {
		t.Fatal("expected admin and department_admin to be admin-like")
	}
	if RoleUser.IsAdminLike() {
		t.Fatal("did not expect user to be admin-like")
	}
}

func TestDurationFor(t *testing.T) {
	if DurationFor(RoleAdmin) != time.Hour || DurationFor(RoleDepartmentAdmin) != time.Hour {
		t.Fatal("expected one hour for admin-like roles")
	}
	if DurationFor(RoleUser) != time.Minute {
		t.Fatal("expected one minute for user role")
	}
}

func TestSession_ValidAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := Session{Identity: Identity{ID: "7", Name: "Anna", Role: RoleUser}, ExpiresAt: now.Add(time.Second)}

	if !s.ValidAt(now) {
		t.Fatal("expected session to be valid before expiry")
	}
	if s.ValidAt(now.Add(time.Second)) {
		t.Fatal("expected session to be invalid exactly at expiry")
	}
	if (Session{Identity: Identity{ID: "7", Role: "guest"}, ExpiresAt: now.Add(time.Hour)}).ValidAt(now) {
		t.Fatal("expected unknown role to be invalid")
	}
	if s.Remaining(now.Add(time.Hour)) != 0 {
		t.Fatal("expected remaining to clamp at zero")
	}
}

func TestActivitySignal_IsRenewing(t *testing.T) {
	for _, s := range []ActivitySignal{SignalPointerMove, SignalPointerDown, SignalKeyDown, SignalTouchStart, SignalScroll} {
		if !s.IsRenewing() {
			t.Errorf("expected %q to renew", s)
		}
	}
	if ActivitySignal("resize").IsRenewing() {
		t.Error("did not expect resize to renew")
	}
}
