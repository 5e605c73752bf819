package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestPickupTokenEmbedsTimestampAndDonor(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	a := PickupToken("donor-1", at)
	b := PickupToken("donor-1", at)

	if !strings.HasPrefix(a, "DONATION-20260304050607-donor-1-") {
		t.Fatalf("unexpected token layout: %s", a)
	}
	if a == b {
		t.Fatalf("expected unique tokens, got %s twice", a)
	}
}
