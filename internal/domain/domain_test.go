package domain

import "testing"

func TestRequestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{RequestStatusWaiting, RequestStatusReady, true},
		{RequestStatusWaiting, RequestStatusFailed, true},
		{RequestStatusWaiting, RequestStatusFinished, false},
		{RequestStatusReady, RequestStatusFinished, true},
		{RequestStatusReady, RequestStatusFailed, true},
		{RequestStatusReady, RequestStatusWaiting, false},
		{RequestStatusReady, RequestStatusReady, false},
		{RequestStatusFinished, RequestStatusFailed, false},
		{RequestStatusFailed, RequestStatusReady, false},
		{RequestStatusWaiting, RequestStatus("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRequestStatus_IsTerminal(t *testing.T) {
	if RequestStatusWaiting.IsTerminal() || RequestStatusReady.IsTerminal() {
		t.Error("waiting and ready should not be terminal")
	}
	if !RequestStatusFinished.IsTerminal() || !RequestStatusFailed.IsTerminal() {
		t.Error("finished and failed should be terminal")
	}
}

func TestRequest_KnownSize(t *testing.T) {
	r := &Request{}
	if r.KnownSize() != 0 {
		t.Errorf("expected 0 for unknown size, got %d", r.KnownSize())
	}

	size := int64(600)
	r.Size = &size
	if r.KnownSize() != 600 {
		t.Errorf("expected 600, got %d", r.KnownSize())
	}
}

func TestRetryPolicy_Next(t *testing.T) {
	tests := []struct {
		used, max int
		want      RetryDecision
		remaining int
	}{
		{0, 3, RetryAllowed, 3},
		{2, 3, RetryAllowed, 1},
		{3, 3, RetryExhausted, 0},
		{5, 3, RetryExhausted, 0},
		{0, 0, RetryExhausted, 0},
	}

	for _, tt := range tests {
		p := RetryPolicy{AttemptsUsed: tt.used, MaxAttempts: tt.max}
		if got := p.Next(); got != tt.want {
			t.Errorf("used=%d max=%d: got %s, want %s", tt.used, tt.max, got, tt.want)
		}
		if got := p.Remaining(); got != tt.remaining {
			t.Errorf("used=%d max=%d: remaining %d, want %d", tt.used, tt.max, got, tt.remaining)
		}
	}
}
