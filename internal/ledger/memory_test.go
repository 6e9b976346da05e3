package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryLedger_AppendAndReplay(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	m.Deposit("user-1", 10_000)

	res, err := m.AppendTrade(ctx, TradeRequest{
		UserID: "user-1", Symbol: "ACME", Side: SideBuy, Quantity: 10, Price: 100,
	})
	if err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}
	if res.TradeID == "" || res.ExecutedQty != 10 {
		t.Errorf("unexpected commit result: %+v", res)
	}

	state, err := m.Replay(ctx, "user-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if state.CashBalance != 9_000 {
		t.Errorf("cash = %v, want 9000", state.CashBalance)
	}
	h := state.Holdings["ACME"]
	if h.Quantity != 10 || h.AvgCost != 100 {
		t.Errorf("holding = %+v, want 10 @ 100", h)
	}
}

func TestMemoryLedger_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(m *MemoryLedger)
		req     TradeRequest
		wantErr error
	}{
		{
			name:    "unknown account",
			setup:   func(m *MemoryLedger) {},
			req:     TradeRequest{UserID: "ghost", Symbol: "ACME", Side: SideBuy, Quantity: 1, Price: 1},
			wantErr: ErrAccountNotFound,
		},
		{
			name: "buy beyond cash",
			setup: func(m *MemoryLedger) {
				m.Deposit("user-1", 100)
			},
			req:     TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideBuy, Quantity: 10, Price: 100},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "sell with no position",
			setup: func(m *MemoryLedger) {
				m.Deposit("user-1", 1_000)
			},
			req:     TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideSell, Quantity: 1, Price: 100},
			wantErr: ErrNoPosition,
		},
		{
			name: "sell beyond position",
			setup: func(m *MemoryLedger) {
				m.Deposit("user-1", 10_000)
				m.AppendTrade(ctx, TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideBuy, Quantity: 5, Price: 100})
			},
			req:     TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideSell, Quantity: 10, Price: 100},
			wantErr: ErrInsufficientShares,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemoryLedger()
			tt.setup(m)
			_, err := m.AppendTrade(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AppendTrade err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryLedger_RejectionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	m.Deposit("user-1", 1_000)
	if _, err := m.AppendTrade(ctx, TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideBuy, Quantity: 5, Price: 100}); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}

	if _, err := m.AppendTrade(ctx, TradeRequest{UserID: "user-1", Symbol: "ACME", Side: SideSell, Quantity: 50, Price: 100}); err == nil {
		t.Fatal("expected rejection")
	}

	state, err := m.Replay(ctx, "user-1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if state.Holdings["ACME"].Quantity != 5 {
		t.Errorf("quantity = %d, want 5", state.Holdings["ACME"].Quantity)
	}
	if state.CashBalance != 500 {
		t.Errorf("cash = %v, want 500", state.CashBalance)
	}
}

func TestMemoryLedger_ActiveUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger()
	m.Deposit("bob", 1_000)
	m.Deposit("alice", 1_000)
	m.AppendTrade(ctx, TradeRequest{UserID: "bob", Symbol: "ACME", Side: SideBuy, Quantity: 1, Price: 10})
	m.AppendTrade(ctx, TradeRequest{UserID: "alice", Symbol: "ACME", Side: SideBuy, Quantity: 1, Price: 10})

	users, err := m.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("users = %v, want [alice bob]", users)
	}
}
