package domain

import "testing"

func TestOrder_Remaining(t *testing.T) {
	o := &Order{Quantity: 200, FilledQuantity: 50}
	if got := o.Remaining(); got != 150 {
		t.Errorf("Remaining() = %d, want 150", got)
	}
}

func TestOrder_Resting(t *testing.T) {
	cases := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPending, true},
		{OrderStatusPartial, true},
		{OrderStatusMatched, false},
		{OrderStatusCancelled, false},
		{OrderStatusExpired, false},
	}
	for _, tc := range cases {
		o := &Order{Status: tc.status}
		if got := o.Resting(); got != tc.want {
			t.Errorf("Resting() with status %s = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestOrder_RecalcStatus(t *testing.T) {
	o := &Order{Quantity: 100, Status: OrderStatusPending}

	o.FilledQuantity = 40
	o.RecalcStatus()
	if o.Status != OrderStatusPartial {
		t.Errorf("Status = %s, want partial", o.Status)
	}

	o.FilledQuantity = 100
	o.RecalcStatus()
	if o.Status != OrderStatusMatched {
		t.Errorf("Status = %s, want matched", o.Status)
	}
}

func TestOrder_RecalcStatus_NeverLeavesTerminalState(t *testing.T) {
	o := &Order{Quantity: 100, FilledQuantity: 40, Status: OrderStatusCancelled}
	o.RecalcStatus()
	if o.Status != OrderStatusCancelled {
		t.Errorf("Status = %s, want cancelled to stay terminal", o.Status)
	}
}

func TestExecStyle_Conditional(t *testing.T) {
	if StyleLimit.Conditional() || StyleMarket.Conditional() {
		t.Error("limit/market must not be conditional")
	}
	if !StyleStopLoss.Conditional() || !StyleTakeProfit.Conditional() {
		t.Error("stop_loss/take_profit must be conditional")
	}
}

func TestSide_Counter(t *testing.T) {
	if SideBuy.Counter() != SideSell || SideSell.Counter() != SideBuy {
		t.Error("Counter() must flip the side")
	}
}
