package attendance

import (
	"testing"
	"time"
)

func TestStatusIsPresent(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusPresent, true},
		{StatusLate, true},
		{StatusHalfDay, true},
		{StatusAbsent, false},
		{StatusHoliday, false},
		{StatusLeave, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			if got := tc.status.IsPresent(); got != tc.expected {
				t.Errorf("IsPresent(%s) = %v; want %v", tc.status, got, tc.expected)
			}
		})
	}
}

func TestValidSession(t *testing.T) {
	for _, s := range []Session{SessionMorning, SessionAfternoon, SessionFullDay} {
		if !ValidSession(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ValidSession("EVENING") {
		t.Error("expected unknown session to be invalid")
	}
}

func TestKeyDateString(t *testing.T) {
	key := Key{Date: time.Date(2024, 3, 11, 23, 59, 0, 0, time.UTC)}
	if got := key.DateString(); got != "2024-03-11" {
		t.Errorf("DateString = %s; want 2024-03-11", got)
	}
}
