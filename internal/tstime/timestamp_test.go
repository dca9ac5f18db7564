package tstime

import "testing"

func TestCompareOrdersLexicographically(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeStamp
		want int
	}{
		{"equal", TimeStamp{1, 2, 3}, TimeStamp{1, 2, 3}, 0},
		{"seconds dominate", TimeStamp{2, 0, 0}, TimeStamp{1, 999, 999}, 1},
		{"nanoseconds break tie", TimeStamp{1, 5, 0}, TimeStamp{1, 6, 0}, -1},
		{"pulseId breaks tie", TimeStamp{1, 5, 10}, TimeStamp{1, 5, 9}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Compare(c.a, c.b); got != c.want {
				t.Errorf("Compare(%+v, %+v) = %d, want %d", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestLessAndEqual(t *testing.T) {
	a := TimeStamp{Seconds: 1}
	b := TimeStamp{Seconds: 2}
	if !Less(a, b) {
		t.Error("expected a < b")
	}
	if Less(b, a) {
		t.Error("expected b not < a")
	}
	if !Equal(a, a) {
		t.Error("expected a == a")
	}
	if !LessEqual(a, a) {
		t.Error("expected a <= a")
	}
}

func TestNanosSince(t *testing.T) {
	a := TimeStamp{Seconds: 1, Nanoseconds: 500}
	b := TimeStamp{Seconds: 2, Nanoseconds: 100}
	got := NanosSince(a, b)
	want := int64(1e9) - 400
	if got != want {
		t.Errorf("NanosSince = %d, want %d", got, want)
	}
}

func TestAddMicrosHandlesCarry(t *testing.T) {
	ts := TimeStamp{Seconds: 1, Nanoseconds: 999_999_500}
	got := AddMicros(ts, 1) // +1000ns
	want := TimeStamp{Seconds: 2, Nanoseconds: 500}
	if got != want {
		t.Errorf("AddMicros = %+v, want %+v", got, want)
	}
}

func TestAlignDown(t *testing.T) {
	ts := TimeStamp{Seconds: 1, Nanoseconds: 750_000}
	got := AlignDown(ts, 500) // 500us grid
	want := TimeStamp{Seconds: 1, Nanoseconds: 500_000}
	if got != want {
		t.Errorf("AlignDown = %+v, want %+v", got, want)
	}
}

func TestAlignDownZeroGranularityIsIdentity(t *testing.T) {
	ts := TimeStamp{Seconds: 3, Nanoseconds: 123}
	if got := AlignDown(ts, 0); got != ts {
		t.Errorf("AlignDown with 0 granularity = %+v, want %+v", got, ts)
	}
}
