package access

import (
	"context"
	"testing"
	"time"

	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

func TestCanView(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := StaticDirectory{"root": true}

	event := &model.Event{ID: "ev1", Name: "Poker Night", CreatorID: "organizer", Active: true, CreatedAt: time.Now().UTC()}
	if err := st.CreateEvent(ctx, event); err != nil {
		t.Fatal(err)
	}
	if err := st.AddMembership(ctx, &model.EventMembership{
		EventID: "ev1", UserID: "member", Role: model.RoleMember, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	market := &model.Market{
		ID:        "m1",
		Title:     "Derby",
		CreatorID: "creator",
		HouseID:   "house",
		EventID:   "ev1",
		Status:    model.MarketOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateMarket(ctx, market, []model.Outcome{
		{ID: "o1", MarketID: "m1", Title: "Red"},
		{ID: "o2", MarketID: "m1", Title: "Blue"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.AddMarketShare(ctx, &model.MarketShare{
		MarketID: "m1", UserID: "shared", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		userID string
		want   bool
	}{
		{"anonymous", "", false},
		{"superuser", "root", true},
		{"creator", "creator", true},
		{"house", "house", true},
		{"event member", "member", true},
		{"direct share", "shared", true},
		{"stranger", "stranger", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanView(ctx, dir, st, tc.userID, market)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("CanView(%q) = %v, want %v", tc.userID, got, tc.want)
			}
		})
	}
}

// A market outside any event is visible only through creator, house,
// superuser, or a direct share.
func TestCanViewNoEvent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	market := &model.Market{
		ID:        "m1",
		Title:     "Side Bet",
		CreatorID: "creator",
		Status:    model.MarketOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateMarket(ctx, market, []model.Outcome{
		{ID: "o1", MarketID: "m1", Title: "Red"},
		{ID: "o2", MarketID: "m1", Title: "Blue"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := CanView(ctx, nil, st, "stranger", market)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("stranger should not see an unshared market")
	}

	got, err = CanView(ctx, nil, st, "creator", market)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("creator should see their own market")
	}
}
