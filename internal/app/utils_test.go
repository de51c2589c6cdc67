package app

import (
	"errors"
	"testing"
	"time"
)

func TestHourBucket(t *testing.T) {
	tests := []struct {
		hour int
		want int
	}{
		{0, 0}, {5, 0}, {6, 1}, {11, 1},
		{12, 2}, {17, 2}, {18, 3}, {23, 3},
		{-1, 0}, {24, 0},
	}
	for _, tt := range tests {
		if got := hourBucket(tt.hour); got != tt.want {
			t.Fatalf("hourBucket(%d) = %d; want %d", tt.hour, got, tt.want)
		}
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("привет мир", 6); got != "привет..." {
		t.Fatalf("shorten обрезал неверно: %q", got)
	}
	if got := shorten("короткое", 100); got != "короткое" {
		t.Fatalf("короткая строка не должна меняться: %q", got)
	}
}

func TestSendWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := sendWithRetry(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("временная ошибка")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ожидался успех после ретраев: %v", err)
	}
	if calls != 3 {
		t.Fatalf("ожидалось 3 вызова, было %d", calls)
	}
}

func TestSendWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := sendWithRetry(2, time.Millisecond, func() error {
		calls++
		return errors.New("постоянная ошибка")
	})
	if err == nil {
		t.Fatal("ожидалась ошибка после исчерпания попыток")
	}
	if calls != 2 {
		t.Fatalf("ожидалось 2 вызова, было %d", calls)
	}
}
