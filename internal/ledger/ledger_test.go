package ledger

import (
	"math"
	"testing"

	"trading-botv1/internal/model"
)

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func TestOpen_LongLevels(t *testing.T) {
	// Entry 100 LONG → SL=98, TP1=103, TP2=105, TP3=108 from the fixed table.
	l := New()
	pos, err := l.Open("BTCUSDT", model.SideLong, 0.5, 100, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "initial SL", pos.InitialSL, 98)
	assertClose(t, "current SL", pos.CurrentSL, 98)
	assertClose(t, "TP1", pos.TP1Price, 103)
	assertClose(t, "TP2", pos.TP2Price, 105)
	assertClose(t, "TP3", pos.TP3Price, 108)
	if pos.Status != model.StatusOpen {
		t.Errorf("status %s, want OPEN", pos.Status)
	}
}

func TestOpen_ShortLevels(t *testing.T) {
	l := New()
	pos, err := l.Open("ETHUSDT", model.SideShort, 2, 200, 0.75)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "initial SL", pos.InitialSL, 204)
	assertClose(t, "TP1", pos.TP1Price, 194)
	assertClose(t, "TP2", pos.TP2Price, 190)
	assertClose(t, "TP3", pos.TP3Price, 184)
}

func TestOpen_Duplicate(t *testing.T) {
	l := New()
	if _, err := l.Open("BTCUSDT", model.SideLong, 1, 100, 0.8); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Open("BTCUSDT", model.SideShort, 1, 101, 0.9); err != ErrDuplicatePosition {
		t.Errorf("got %v, want ErrDuplicatePosition", err)
	}
	// Other symbols are unaffected.
	if _, err := l.Open("ETHUSDT", model.SideLong, 1, 50, 0.8); err != nil {
		t.Errorf("unexpected error for second symbol: %v", err)
	}
}

func TestClose_NoPosition(t *testing.T) {
	l := New()
	if _, err := l.Close("BTCUSDT", 100, "test"); err != ErrNoOpenPosition {
		t.Errorf("got %v, want ErrNoOpenPosition", err)
	}
}

func TestOpenClose_RoundTrip(t *testing.T) {
	l := New()
	if _, err := l.Open("BTCUSDT", model.SideLong, 2, 100, 0.8); err != nil {
		t.Fatal(err)
	}

	closed, err := l.Close("BTCUSDT", 110, "signal reversal")
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "LONG profit", closed.PnL, (110-100)*2)
	if closed.Status != model.StatusClosed {
		t.Errorf("status %s, want CLOSED", closed.Status)
	}
	if closed.CloseReason != "signal reversal" {
		t.Errorf("close reason %q", closed.CloseReason)
	}
	if len(l.OpenPositions()) != 0 {
		t.Error("position still open after Close")
	}
}

func TestClose_PnLSign(t *testing.T) {
	cases := []struct {
		side  model.Side
		entry float64
		exit  float64
		want  float64
	}{
		{model.SideLong, 100, 110, 10},  // LONG profits when exit > entry
		{model.SideLong, 100, 95, -5},   // LONG loses when exit < entry
		{model.SideShort, 100, 90, 10},  // SHORT profits when exit < entry
		{model.SideShort, 100, 104, -4}, // SHORT loses when exit > entry
	}
	for _, tc := range cases {
		l := New()
		if _, err := l.Open("X", tc.side, 1, tc.entry, 0.8); err != nil {
			t.Fatal(err)
		}
		closed, err := l.Close("X", tc.exit, "test")
		if err != nil {
			t.Fatal(err)
		}
		assertClose(t, string(tc.side)+" pnl", closed.PnL, tc.want)
	}
}

func TestMarkPrice_TPProgression(t *testing.T) {
	l := New()
	if _, err := l.Open("BTCUSDT", model.SideLong, 1, 100, 0.8); err != nil {
		t.Fatal(err)
	}

	// Below TP1: nothing marked, stop unchanged.
	pos, err := l.MarkPrice("BTCUSDT", 102)
	if err != nil {
		t.Fatal(err)
	}
	if pos.TP1Hit {
		t.Error("TP1 marked below its level")
	}
	assertClose(t, "SL untouched", pos.CurrentSL, 98)

	// TP1 crossed: stop ratchets to breakeven.
	pos, _ = l.MarkPrice("BTCUSDT", 103.5)
	if !pos.TP1Hit || pos.TP2Hit {
		t.Errorf("TP flags after TP1: tp1=%v tp2=%v", pos.TP1Hit, pos.TP2Hit)
	}
	assertClose(t, "SL at breakeven", pos.CurrentSL, 100)

	// TP2 crossed: stop ratchets to TP1.
	pos, _ = l.MarkPrice("BTCUSDT", 105.2)
	if !pos.TP2Hit {
		t.Error("TP2 not marked")
	}
	assertClose(t, "SL at TP1", pos.CurrentSL, 103)

	// TP3 crossed.
	pos, _ = l.MarkPrice("BTCUSDT", 108.1)
	if !pos.TP3Hit {
		t.Error("TP3 not marked")
	}

	// Marks persist on later pulls.
	pos, _ = l.MarkPrice("BTCUSDT", 104)
	if !pos.TP1Hit || !pos.TP2Hit || !pos.TP3Hit {
		t.Error("TP hit flags must be sticky")
	}
}

func TestMarkPrice_ShortDirection(t *testing.T) {
	l := New()
	if _, err := l.Open("ETHUSDT", model.SideShort, 1, 100, 0.8); err != nil {
		t.Fatal(err)
	}
	pos, err := l.MarkPrice("ETHUSDT", 96.5) // below TP1=97
	if err != nil {
		t.Fatal(err)
	}
	if !pos.TP1Hit {
		t.Error("SHORT TP1 should mark when price drops through it")
	}
	assertClose(t, "unrealized pnl", pos.PnL, 100-96.5)
}

func TestStopHit(t *testing.T) {
	long := model.Position{Side: model.SideLong, CurrentSL: 98}
	if !StopHit(long, 97.9) {
		t.Error("LONG stop should trigger at/below SL")
	}
	if StopHit(long, 98.1) {
		t.Error("LONG stop must not trigger above SL")
	}

	short := model.Position{Side: model.SideShort, CurrentSL: 102}
	if !StopHit(short, 102.5) {
		t.Error("SHORT stop should trigger at/above SL")
	}
	if StopHit(short, 101.5) {
		t.Error("SHORT stop must not trigger below SL")
	}
}

func TestTotalUnrealizedPnL(t *testing.T) {
	l := New()
	l.Open("A", model.SideLong, 1, 100, 0.8)
	l.Open("B", model.SideShort, 2, 50, 0.8)
	l.MarkPrice("A", 105) // +5
	l.MarkPrice("B", 48)  // +4
	assertClose(t, "total unrealized", l.TotalUnrealizedPnL(), 9)
}
