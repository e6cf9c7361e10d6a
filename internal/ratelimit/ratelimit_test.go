package ratelimit

import (
	"testing"
	"time"

	"groupwarden/internal/platform"
)

func TestCooldownSuppressesBurst(t *testing.T) {
	gate := NewGate(800 * time.Millisecond)
	group := platform.Normalize("1@g.us")
	user := platform.Normalize("55@s.whatsapp.net")
	now := time.Unix(1_700_000_000, 0)

	if gate.ShouldSuppress(group, user, now) {
		t.Fatalf("first event must pass")
	}
	if !gate.ShouldSuppress(group, user, now.Add(100*time.Millisecond)) {
		t.Fatalf("second event inside cooldown must be suppressed")
	}
	if gate.ShouldSuppress(group, user, now.Add(900*time.Millisecond)) {
		t.Fatalf("event after cooldown must pass")
	}
}

func TestPairsAreIndependent(t *testing.T) {
	gate := NewGate(800 * time.Millisecond)
	group := platform.Normalize("1@g.us")
	a := platform.Normalize("1@s.whatsapp.net")
	b := platform.Normalize("2@s.whatsapp.net")
	now := time.Unix(1_700_000_000, 0)

	if gate.ShouldSuppress(group, a, now) {
		t.Fatalf("first event for a must pass")
	}
	if gate.ShouldSuppress(group, b, now) {
		t.Fatalf("first event for b must pass")
	}

	other := platform.Normalize("2@g.us")
	if gate.ShouldSuppress(other, a, now) {
		t.Fatalf("same user in another group must pass")
	}
}

func TestDeviceSuffixSharesCooldown(t *testing.T) {
	gate := NewGate(800 * time.Millisecond)
	group := platform.Normalize("1@g.us")
	now := time.Unix(1_700_000_000, 0)

	if gate.ShouldSuppress(group, platform.Normalize("55:1@s.whatsapp.net"), now) {
		t.Fatalf("first event must pass")
	}
	if !gate.ShouldSuppress(group, platform.Normalize("55:2@s.whatsapp.net"), now.Add(time.Millisecond)) {
		t.Fatalf("same account on another device must share the cooldown")
	}
}
