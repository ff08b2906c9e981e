package engine

import (
	"testing"

	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

func trendLine(id string) types.Drawing {
	d, err := types.NewDrawing(types.DrawingTrendLine, id, []types.Point{{Time: 1, Price: 10}, {Time: 2, Price: 20}})
	if err != nil {
		panic(err)
	}
	return d
}

func addDrawing(d types.Drawing) types.Action {
	return types.MustAction(types.ActionAddDrawing, types.DrawingPayload{Drawing: d})
}

func deleteDrawing(id string) types.Action {
	return types.MustAction(types.ActionDeleteDrawing, types.DeleteDrawingPayload{DrawingID: id})
}

func liveIDs(s State) []string {
	var ids []string
	for _, d := range s.Chart.LiveDrawings() {
		ids = append(ids, d.ID)
	}
	return ids
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAddDrawingIsIdempotent(t *testing.T) {
	s := NewState()
	before := len(s.Chart.Drawings)

	s = Reduce(s, addDrawing(trendLine("t1")))
	s = Reduce(s, addDrawing(trendLine("t1")))

	if len(s.Chart.Drawings) != before+1 {
		t.Fatalf("want %d drawings, got %d", before+1, len(s.Chart.Drawings))
	}
}

func TestDeleteDrawing(t *testing.T) {
	cases := []struct {
		name     string
		setup    []types.Drawing
		deleteID string
		wantLive []string
		wantLen  int
	}{
		{
			name:     "absent id is a no-op",
			setup:    []types.Drawing{trendLine("t1")},
			deleteID: "nope",
			wantLive: []string{"t1"},
			wantLen:  1,
		},
		{
			name:     "present id is tombstoned",
			setup:    []types.Drawing{trendLine("t1"), trendLine("t2")},
			deleteID: "t1",
			wantLive: []string{"t2"},
			wantLen:  2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState()
			for _, d := range tc.setup {
				s = Reduce(s, addDrawing(d))
			}
			s = Reduce(s, deleteDrawing(tc.deleteID))
			again := Reduce(s, deleteDrawing(tc.deleteID))

			if !sameIDs(liveIDs(s), tc.wantLive...) {
				t.Fatalf("live: got %v, want %v", liveIDs(s), tc.wantLive)
			}
			if len(s.Chart.Drawings) != tc.wantLen {
				t.Fatalf("records: got %d, want %d", len(s.Chart.Drawings), tc.wantLen)
			}
			if !sameIDs(liveIDs(again), tc.wantLive...) || len(again.Chart.Drawings) != tc.wantLen {
				t.Fatalf("second delete changed state")
			}
		})
	}
}

func TestAddAfterDeleteDoesNotResurrect(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))
	s = Reduce(s, deleteDrawing("t1"))
	s = Reduce(s, addDrawing(trendLine("t1")))

	if len(liveIDs(s)) != 0 {
		t.Fatalf("stale add resurrected drawing: %v", liveIDs(s))
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))
	s = Reduce(s, types.MustAction(types.ActionSelectDrawing, types.SelectDrawingPayload{DrawingID: "t1"}))
	if s.Chart.Selected != "t1" {
		t.Fatalf("expected t1 selected, got %q", s.Chart.Selected)
	}
	s = Reduce(s, deleteDrawing("t1"))
	if s.Chart.Selected != "" {
		t.Fatalf("expected selection cleared, got %q", s.Chart.Selected)
	}
}

func TestMergeDrawings_TombstonePrecedence(t *testing.T) {
	alive := trendLine("d1")
	dead := trendLine("d1")
	dead.IsDeleted = true

	cases := []struct {
		name            string
		local, incoming []types.Drawing
	}{
		{name: "incoming deleted", local: []types.Drawing{alive}, incoming: []types.Drawing{dead}},
		{name: "local deleted", local: []types.Drawing{dead}, incoming: []types.Drawing{alive}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := MergeDrawings(tc.local, tc.incoming)
			for _, d := range merged {
				if d.ID == "d1" {
					t.Fatalf("d1 should be absent, got %+v", merged)
				}
			}
		})
	}
}

func TestMergeDrawings_Union(t *testing.T) {
	merged := MergeDrawings(
		[]types.Drawing{trendLine("a"), trendLine("b")},
		[]types.Drawing{trendLine("b"), trendLine("c")},
	)
	var ids []string
	for _, d := range merged {
		ids = append(ids, d.ID)
	}
	if !sameIDs(ids, "a", "b", "c") {
		t.Fatalf("got %v, want [a b c]", ids)
	}
}

func TestSyncFullState_MergesDrawingsAndReplacesChart(t *testing.T) {
	local := NewState()
	local.Collaboration.RoomID = "abc123"
	local.Collaboration.ParticipantID = "guest"
	local = Reduce(local, addDrawing(trendLine("mine")))
	local = Reduce(local, addDrawing(trendLine("gone")))
	local = Reduce(local, types.MustAction(types.ActionStartTool, types.StartToolPayload{Tool: types.DrawingTrendLine}))

	hostState := NewState()
	btc := types.Product{Symbol: "BTC-USD", Name: "BTCUSD", Exchange: "coinbase"}
	hostState = Reduce(hostState, types.MustAction(types.ActionSelectChart, types.SelectChartPayload{Product: btc, Timeframe: types.Timeframe1H}))
	hostState = Reduce(hostState, addDrawing(trendLine("t1")))
	hostState = Reduce(hostState, addDrawing(trendLine("gone")))
	hostState = Reduce(hostState, deleteDrawing("gone"))
	hostState.Settings.Timezone = "Europe/Berlin"

	sync := types.MustAction(types.ActionSyncFullState, types.SyncFullStatePayload{State: hostState.Snapshot()})
	merged := Reduce(local, sync)

	// "mine" belongs to the guest's previous chart and stays out of BTC.
	if !sameIDs(liveIDs(merged), "t1") {
		t.Fatalf("live drawings: got %v, want [t1]", liveIDs(merged))
	}
	if merged.Chart.ID != "BTC-USD:coinbase" || merged.Chart.Timeframe != types.Timeframe1H {
		t.Fatalf("chart not replaced: %+v", merged.Chart)
	}
	if merged.Settings.Timezone != "Europe/Berlin" {
		t.Fatalf("settings not replaced: %+v", merged.Settings)
	}
	if merged.Collaboration.RoomID != "abc123" || merged.Collaboration.ParticipantID != "guest" {
		t.Fatalf("collaboration must stay local: %+v", merged.Collaboration)
	}
	if merged.Tools.Active != "" {
		t.Fatalf("chart change should cancel tool, got %q", merged.Tools.Active)
	}
}

func TestSelectChart_ClearsToolAndSelection(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))
	s = Reduce(s, types.MustAction(types.ActionSelectDrawing, types.SelectDrawingPayload{DrawingID: "t1"}))
	s = Reduce(s, types.MustAction(types.ActionStartTool, types.StartToolPayload{Tool: types.DrawingTrendLine}))
	s = Reduce(s, types.MustAction(types.ActionAddToolPoint, types.ToolPointPayload{Point: types.Point{Time: 1, Price: 1}}))

	eth := types.Product{Symbol: "ETH-USD", Name: "ETHUSD", Exchange: "coinbase"}
	s = Reduce(s, types.MustAction(types.ActionSelectChart, types.SelectChartPayload{Product: eth, Timeframe: types.Timeframe5m}))

	if s.Tools.Active != "" || len(s.Tools.Points) != 0 {
		t.Fatalf("tool not cleared: %+v", s.Tools)
	}
	if s.Chart.Selected != "" {
		t.Fatalf("selection not cleared: %q", s.Chart.Selected)
	}
	if s.Chart.ID != "ETH-USD:coinbase" {
		t.Fatalf("chart id: got %q", s.Chart.ID)
	}
	if len(s.Chart.Drawings) != 0 {
		t.Fatalf("drawings of the previous chart leaked: %v", s.Chart.Drawings)
	}
}

func TestSelectChart_SameChartKeepsDrawings(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))
	s = Reduce(s, addDrawing(trendLine("gone")))
	s = Reduce(s, deleteDrawing("gone"))

	s = Reduce(s, types.MustAction(types.ActionSelectChart, types.SelectChartPayload{Product: DefaultProduct, Timeframe: types.Timeframe1D}))

	if s.Chart.Timeframe != types.Timeframe1D {
		t.Fatalf("timeframe: got %q", s.Chart.Timeframe)
	}
	if len(s.Chart.Drawings) != 2 || !sameIDs(liveIDs(s), "t1") {
		t.Fatalf("drawings must survive a timeframe change: %+v", s.Chart.Drawings)
	}
}

func TestSelectChart_DropsTombstonesOfPreviousChart(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("x")))
	s = Reduce(s, deleteDrawing("x"))

	btc := types.Product{Symbol: "BTC-USD", Name: "BTCUSD", Exchange: "coinbase"}
	s = Reduce(s, types.MustAction(types.ActionSelectChart, types.SelectChartPayload{Product: btc}))
	s = Reduce(s, addDrawing(trendLine("x")))

	if !sameIDs(liveIDs(s), "x") {
		t.Fatalf("a tombstone on another chart must not block an add: %v", liveIDs(s))
	}
}

func TestSyncFullState_SameChartMergesWithTombstones(t *testing.T) {
	local := Reduce(NewState(), addDrawing(trendLine("mine")))
	local = Reduce(local, addDrawing(trendLine("gone")))

	host := Reduce(NewState(), addDrawing(trendLine("t1")))
	host = Reduce(host, addDrawing(trendLine("gone")))
	host = Reduce(host, deleteDrawing("gone"))

	merged := Reduce(local, types.MustAction(types.ActionSyncFullState, types.SyncFullStatePayload{State: host.Snapshot()}))
	if !sameIDs(liveIDs(merged), "mine", "t1") {
		t.Fatalf("live drawings: got %v, want [mine t1]", liveIDs(merged))
	}
}

func TestSyncFullState_ReplacesSettingsUnconditionally(t *testing.T) {
	local := NewState()
	local.Settings.Timezone = "Asia/Tokyo"

	snap := local.Snapshot()
	snap.Settings = types.ChartSettings{}
	merged := Reduce(local, types.MustAction(types.ActionSyncFullState, types.SyncFullStatePayload{State: snap}))

	if merged.Settings != (types.ChartSettings{}) {
		t.Fatalf("settings must be replaced, got %+v", merged.Settings)
	}
}

func TestModifyDrawing(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))

	edited := trendLine("t1")
	edited.Options.Color = "#000000"
	s = Reduce(s, types.MustAction(types.ActionModifyDrawing, types.DrawingPayload{Drawing: edited}))
	d, ok := s.Chart.Drawing("t1")
	if !ok || d.Options.Color != "#000000" {
		t.Fatalf("modify not applied: %+v", d)
	}

	missing := trendLine("t9")
	after := Reduce(s, types.MustAction(types.ActionModifyDrawing, types.DrawingPayload{Drawing: missing}))
	if len(after.Chart.Drawings) != 1 {
		t.Fatalf("modify of unknown id must be a no-op")
	}
}

func TestHostChanged(t *testing.T) {
	s := NewState()
	s = Reduce(s, types.MustAction(types.ActionRoomWelcome, types.WelcomePayload{ParticipantID: "p2", ActiveUsers: []string{"A", "B"}}))
	if s.Collaboration.IsHost {
		t.Fatalf("guest should not be host")
	}

	other := Reduce(s, types.MustAction(types.ActionHostChanged, types.HostChangedPayload{ParticipantID: "p3"}))
	if other.Collaboration.IsHost {
		t.Fatalf("promotion of someone else must not make us host")
	}

	s = Reduce(s, types.MustAction(types.ActionHostChanged, types.HostChangedPayload{ParticipantID: "p2", DisplayName: "B"}))
	if !s.Collaboration.IsHost {
		t.Fatalf("expected promotion to host")
	}
}

func TestPresence(t *testing.T) {
	s := NewState()
	s = Reduce(s, types.MustAction(types.ActionUserJoined, types.UserPresencePayload{DisplayName: "B"}))
	s = Reduce(s, types.MustAction(types.ActionUserJoined, types.UserPresencePayload{DisplayName: "C"}))
	s = Reduce(s, types.MustAction(types.ActionUserLeft, types.UserPresencePayload{DisplayName: "B"}))

	if !sameIDs(s.Collaboration.ActiveUsers, "C") {
		t.Fatalf("active users: got %v", s.Collaboration.ActiveUsers)
	}
}

func TestReduce_UnknownOrMalformedIsNoop(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("t1")))

	cases := []types.Action{
		{Type: "NOT_A_THING"},
		{Type: types.ActionAddDrawing, Payload: []byte(`{"drawing":`)},
		{Type: types.ActionAddDrawing},
		addDrawing(types.Drawing{ID: "x", Type: "Circle"}),
		{Type: types.ActionSelectChart, Payload: []byte(`{"product":{}}`)},
	}
	for _, a := range cases {
		got := Reduce(s, a)
		if len(got.Chart.Drawings) != 1 || got.Chart.ID != s.Chart.ID {
			t.Fatalf("%s changed state", a.Type)
		}
	}
}

func TestReduce_DoesNotMutatePriorState(t *testing.T) {
	prior := Reduce(NewState(), addDrawing(trendLine("t1")))
	_ = Reduce(prior, deleteDrawing("t1"))

	if prior.Chart.Drawings[0].IsDeleted {
		t.Fatalf("delete leaked into prior state")
	}
}

func TestToolPointsCappedAtArity(t *testing.T) {
	s := Reduce(NewState(), types.MustAction(types.ActionStartTool, types.StartToolPayload{Tool: types.DrawingVertLine}))
	for i := 0; i < 3; i++ {
		s = Reduce(s, types.MustAction(types.ActionAddToolPoint, types.ToolPointPayload{Point: types.Point{Time: int64(i)}}))
	}
	if len(s.Tools.Points) != 1 {
		t.Fatalf("want 1 point for VertLine, got %d", len(s.Tools.Points))
	}
	s = Reduce(s, types.Action{Type: types.ActionCancelTool})
	if s.Tools.Active != "" || s.Tools.Points != nil {
		t.Fatalf("cancel should discard tool state: %+v", s.Tools)
	}
}

func TestInitializeDrawings_MergesRestored(t *testing.T) {
	s := Reduce(NewState(), addDrawing(trendLine("live")))
	s = Reduce(s, addDrawing(trendLine("gone")))
	s = Reduce(s, deleteDrawing("gone"))

	restored := []types.Drawing{trendLine("cached"), trendLine("gone"), {ID: "bad", Type: "Circle"}}
	s = Reduce(s, types.MustAction(types.ActionInitializeDrawings, types.InitializeDrawingsPayload{Drawings: restored}))

	if !sameIDs(liveIDs(s), "live", "cached") {
		t.Fatalf("live drawings: got %v, want [live cached]", liveIDs(s))
	}
}
