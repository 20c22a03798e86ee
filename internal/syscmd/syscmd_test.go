package syscmd

import "testing"

func TestCredentials(t *testing.T) {
	c := NewCredentials()

	if c.Held() {
		t.Error("new store should not hold a credential")
	}
	if _, ok := c.Get(); ok {
		t.Error("Get on empty store should report false")
	}

	c.Set("hunter2")
	if !c.Held() {
		t.Error("store should hold a credential after Set")
	}
	if pw, ok := c.Get(); !ok || pw != "hunter2" {
		t.Errorf("Get = %q, %v; want %q, true", pw, ok, "hunter2")
	}

	c.Clear()
	if c.Held() {
		t.Error("store should be empty after Clear")
	}
	if pw, _ := c.Get(); pw != "" {
		t.Error("password should be wiped after Clear")
	}
}

func TestParseSnapshotList(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want int
	}{
		{
			"tmutil output",
			Result{Code: 0, Stdout: "Snapshots for disk /:\ncom.apple.TimeMachine.2025-12-15-123456.local\ncom.apple.TimeMachine.2025-12-16-093000.local"},
			2,
		},
		{"failed command", Result{Code: 1, Stdout: "com.apple.x"}, 0},
		{"empty output", Result{Code: 0}, 0},
	}

	for _, tt := range tests {
		if got := parseSnapshotList(tt.res); len(got) != tt.want {
			t.Errorf("%s: got %d snapshots (%v), want %d", tt.name, len(got), got, tt.want)
		}
	}
}
