package logger

import (
	"strings"
	"sync"
	"testing"
)

// TestProgressBarRender verifies correct ASCII bar rendering
func TestProgressBarRender(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		expected string
	}{
		{name: "empty progress", current: 0, total: 10, width: 10, expected: "[          ] 0/10 (0%)"},
		{name: "half progress", current: 5, total: 10, width: 10, expected: "[=====     ] 5/10 (50%)"},
		{name: "full progress", current: 10, total: 10, width: 10, expected: "[==========] 10/10 (100%)"},
		{name: "quarter progress", current: 2, total: 8, width: 8, expected: "[==      ] 2/8 (25%)"},
		{name: "overflow clamps", current: 7, total: 5, width: 5, expected: "[=====] 7/5 (100%)"},
		{name: "zero total", current: 0, total: 0, width: 4, expected: "[    ] 0/0 (0%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := NewProgressBar(tt.total, tt.width, false)
			for i := 0; i < tt.current; i++ {
				pb.Increment()
			}
			if got := pb.Render(); got != tt.expected {
				t.Errorf("Render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProgressBarDefaultWidth(t *testing.T) {
	pb := NewProgressBar(2, 0, false)
	if got := pb.Render(); !strings.HasPrefix(got, "["+strings.Repeat(" ", 10)+"]") {
		t.Errorf("Render() = %q, want 10-wide bar", got)
	}
}

func TestProgressBarReset(t *testing.T) {
	pb := NewProgressBar(4, 4, false)
	pb.Increment()
	pb.Increment()
	if pb.Percentage() != 50 {
		t.Fatalf("Percentage() = %d, want 50", pb.Percentage())
	}

	pb.Reset(10)
	if pb.Percentage() != 0 {
		t.Errorf("Percentage() after Reset = %d, want 0", pb.Percentage())
	}
	if got := pb.Render(); !strings.HasSuffix(got, "0/10 (0%)") {
		t.Errorf("Render() after Reset = %q", got)
	}
}

func TestProgressBarColor(t *testing.T) {
	pb := NewProgressBar(2, 4, true)
	pb.Increment()
	if got := pb.Render(); !strings.Contains(got, "1/2 (50%)") {
		t.Errorf("colored Render() lost its text: %q", got)
	}
}

func TestProgressBarConcurrentIncrement(t *testing.T) {
	pb := NewProgressBar(100, 10, false)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pb.Increment()
			_ = pb.Render()
		}()
	}
	wg.Wait()

	if pb.Percentage() != 100 {
		t.Errorf("Percentage() = %d, want 100", pb.Percentage())
	}
}
