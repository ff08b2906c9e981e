package engine

import (
	"slices"

	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

type State struct {
	Collaboration Collaboration
	Settings      types.ChartSettings
	UI            UI
	Tools         Tools
	Chart         Chart
}

type Collaboration struct {
	RoomID        string
	ParticipantID string
	IsHost        bool
	IsLoading     bool
	ActiveUsers   []string
	Status        types.ConnectionStatus
}

type UI struct {
	SettingsOpen     bool
	CollabWindowOpen bool
}

// Tools is the in-progress drawing interaction. Points are collected until the
// active type's arity is reached.
type Tools struct {
	Active types.DrawingType
	Points []types.Point
}

type Chart struct {
	ID        string
	Product   types.Product
	Style     string
	Timeframe types.Timeframe
	Drawings  []types.Drawing // live and tombstoned, insertion order
	Selected  string
	Feed      types.ConnectionState
}

// Reduce applies a to s and returns the new state. It never fails: actions that
// are unknown or carry an undecodable payload leave the state unchanged.
// Slices in s are never written to; changed collections are copied.
func Reduce(s State, a types.Action) State {
	switch a.Type {
	case types.ActionAddDrawing:
		p, err := types.DecodePayload[types.DrawingPayload](a)
		if err != nil || p.Drawing.Validate() != nil {
			return s
		}
		if indexOf(s.Chart.Drawings, p.Drawing.ID) >= 0 {
			// Already present, or tombstoned: a stale add never resurrects.
			return s
		}
		d := p.Drawing.Clone()
		d.IsDeleted = false
		s.Chart.Drawings = appendCopy(s.Chart.Drawings, d)
		return s

	case types.ActionDeleteDrawing:
		p, err := types.DecodePayload[types.DeleteDrawingPayload](a)
		if err != nil {
			return s
		}
		i := indexOf(s.Chart.Drawings, p.DrawingID)
		if i < 0 || s.Chart.Drawings[i].IsDeleted {
			return s
		}
		s.Chart.Drawings = slices.Clone(s.Chart.Drawings)
		s.Chart.Drawings[i].IsDeleted = true
		if s.Chart.Selected == p.DrawingID {
			s.Chart.Selected = ""
		}
		return s

	case types.ActionModifyDrawing:
		p, err := types.DecodePayload[types.DrawingPayload](a)
		if err != nil || p.Drawing.Validate() != nil {
			return s
		}
		i := indexOf(s.Chart.Drawings, p.Drawing.ID)
		if i < 0 || s.Chart.Drawings[i].IsDeleted {
			return s
		}
		d := p.Drawing.Clone()
		d.IsDeleted = false
		s.Chart.Drawings = slices.Clone(s.Chart.Drawings)
		s.Chart.Drawings[i] = d
		return s

	case types.ActionSelectChart:
		p, err := types.DecodePayload[types.SelectChartPayload](a)
		if err != nil || p.Product.Symbol == "" {
			return s
		}
		return selectChart(s, p.Product, p.Timeframe)

	case types.ActionSyncFullState:
		p, err := types.DecodePayload[types.SyncFullStatePayload](a)
		if err != nil {
			return s
		}
		return mergeSnapshot(s, p.State)

	case types.ActionRoomWelcome:
		p, err := types.DecodePayload[types.WelcomePayload](a)
		if err != nil {
			return s
		}
		s.Collaboration.ParticipantID = p.ParticipantID
		s.Collaboration.IsHost = p.IsHost
		s.Collaboration.ActiveUsers = slices.Clone(p.ActiveUsers)
		s.Collaboration.IsLoading = false
		return s

	case types.ActionUserJoined:
		p, err := types.DecodePayload[types.UserPresencePayload](a)
		if err != nil {
			return s
		}
		s.Collaboration.ActiveUsers = append(slices.Clone(s.Collaboration.ActiveUsers), p.DisplayName)
		return s

	case types.ActionUserLeft:
		p, err := types.DecodePayload[types.UserPresencePayload](a)
		if err != nil {
			return s
		}
		if i := slices.Index(s.Collaboration.ActiveUsers, p.DisplayName); i >= 0 {
			s.Collaboration.ActiveUsers = slices.Delete(slices.Clone(s.Collaboration.ActiveUsers), i, i+1)
		}
		return s

	case types.ActionHostChanged:
		p, err := types.DecodePayload[types.HostChangedPayload](a)
		if err != nil {
			return s
		}
		s.Collaboration.IsHost = p.ParticipantID != "" && p.ParticipantID == s.Collaboration.ParticipantID
		return s

	case types.ActionCreateCollabRoom, types.ActionJoinCollabRoom:
		p, err := types.DecodePayload[types.RoomPayload](a)
		if err != nil {
			return s
		}
		s.Collaboration.RoomID = p.RoomID
		s.Collaboration.IsHost = a.Type == types.ActionCreateCollabRoom
		s.Collaboration.IsLoading = true
		return s

	case types.ActionLeaveCollabRoom:
		s.Collaboration = Collaboration{Status: types.StatusDisconnected}
		return s

	case types.ActionSetConnectionStatus:
		p, err := types.DecodePayload[types.ConnectionStatusPayload](a)
		if err != nil {
			return s
		}
		s.Collaboration.Status = p.Status
		return s

	case types.ActionEndLoading:
		s.Collaboration.IsLoading = false
		return s

	case types.ActionSetChartConnectionState:
		p, err := types.DecodePayload[types.ChartConnectionPayload](a)
		if err != nil {
			return s
		}
		s.Chart.Feed = p.State
		return s

	case types.ActionStartTool:
		p, err := types.DecodePayload[types.StartToolPayload](a)
		if err != nil {
			return s
		}
		if _, err := types.Arity(p.Tool); err != nil {
			return s
		}
		s.Tools = Tools{Active: p.Tool}
		s.Chart.Selected = ""
		return s

	case types.ActionAddToolPoint:
		p, err := types.DecodePayload[types.ToolPointPayload](a)
		if err != nil || s.Tools.Active == "" {
			return s
		}
		if n, _ := types.Arity(s.Tools.Active); len(s.Tools.Points) >= n {
			return s
		}
		s.Tools.Points = append(slices.Clone(s.Tools.Points), p.Point)
		return s

	case types.ActionCancelTool:
		s.Tools = Tools{}
		return s

	case types.ActionSelectDrawing:
		p, err := types.DecodePayload[types.SelectDrawingPayload](a)
		if err != nil {
			return s
		}
		if p.DrawingID != "" {
			i := indexOf(s.Chart.Drawings, p.DrawingID)
			if i < 0 || s.Chart.Drawings[i].IsDeleted {
				return s
			}
		}
		s.Chart.Selected = p.DrawingID
		return s

	case types.ActionInitializeDrawings:
		p, err := types.DecodePayload[types.InitializeDrawingsPayload](a)
		if err != nil {
			return s
		}
		// Restored drawings join the current chart's set; anything already known wins.
		s.Chart.Drawings = reconcile(s.Chart.Drawings, validOnly(p.Drawings))
		return s

	case types.ActionUpdateSettings:
		p, err := types.DecodePayload[types.UpdateSettingsPayload](a)
		if err != nil {
			return s
		}
		s.Settings = p.Settings
		return s

	case types.ActionSetTimezone:
		p, err := types.DecodePayload[types.SetTimezonePayload](a)
		if err != nil {
			return s
		}
		s.Settings.Timezone = p.Timezone
		return s

	case types.ActionToggleSettings:
		p, err := types.DecodePayload[types.TogglePayload](a)
		if err != nil {
			return s
		}
		s.UI.SettingsOpen = p.State
		return s

	case types.ActionToggleCollabWindow:
		p, err := types.DecodePayload[types.TogglePayload](a)
		if err != nil {
			return s
		}
		s.UI.CollabWindowOpen = p.State
		return s

	case types.ActionCleanupState:
		s.Collaboration = Collaboration{Status: s.Collaboration.Status}
		s.UI = UI{}
		s.Tools = Tools{}
		s.Chart.Selected = ""
		return s

	default:
		return s
	}
}

// selectChart switches the chart identity. Tool state and selection belong to the
// old chart's coordinate space and are dropped. Drawings, tombstones included,
// are scoped to a chart id: a different id starts from an empty collection that
// the caller fills with INITIALIZE_DRAWINGS.
func selectChart(s State, product types.Product, timeframe types.Timeframe) State {
	if id := product.ChartID(); id != s.Chart.ID {
		s.Chart.ID = id
		s.Chart.Drawings = nil
	}
	s.Chart.Product = product
	if timeframe != "" {
		s.Chart.Timeframe = timeframe
	}
	s.Chart.Selected = ""
	s.Tools = Tools{}
	return s
}

// mergeSnapshot deep-replaces chart identity and settings with the incoming
// snapshot, then merges its drawings with tombstone precedence into the
// collection of the snapshot's chart. Local drawings of another chart never mix
// in.
func mergeSnapshot(s State, in types.Snapshot) State {
	if in.Chart.Product.Symbol != "" {
		if in.Chart.Product.ChartID() != s.Chart.ID {
			s = selectChart(s, in.Chart.Product, in.Chart.Timeframe)
		} else if in.Chart.Timeframe != "" {
			s.Chart.Timeframe = in.Chart.Timeframe
		}
	}
	if in.Chart.Style != "" {
		s.Chart.Style = in.Chart.Style
	}
	s.Settings = in.Settings
	s.Chart.Drawings = reconcile(s.Chart.Drawings, validOnly(in.Chart.Drawings))
	if s.Chart.Selected != "" {
		if i := indexOf(s.Chart.Drawings, s.Chart.Selected); i < 0 || s.Chart.Drawings[i].IsDeleted {
			s.Chart.Selected = ""
		}
	}
	return s
}

// Snapshot extracts the shared part of s for SYNC_FULL_STATE.
func (s State) Snapshot() types.Snapshot {
	drawings := make([]types.Drawing, len(s.Chart.Drawings))
	for i, d := range s.Chart.Drawings {
		drawings[i] = d.Clone()
	}
	return types.Snapshot{
		Chart: types.ChartSnapshot{
			ID:        s.Chart.ID,
			Product:   s.Chart.Product,
			Style:     s.Chart.Style,
			Timeframe: s.Chart.Timeframe,
			Drawings:  drawings,
		},
		Settings: s.Settings,
	}
}

// LiveDrawings returns the drawings that are not tombstoned.
func (c Chart) LiveDrawings() []types.Drawing {
	return live(c.Drawings)
}

// Drawing looks up a live drawing by id.
func (c Chart) Drawing(id string) (types.Drawing, bool) {
	i := indexOf(c.Drawings, id)
	if i < 0 || c.Drawings[i].IsDeleted {
		return types.Drawing{}, false
	}
	return c.Drawings[i], true
}
