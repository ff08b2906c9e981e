package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server -> every other participant
// SYNC_FULL_STATE:
//   state: Snapshot (sent by the host after USER_JOINED)
//
// SELECT_CHART:
//   product: { symbol, name, exchange }
//   timeframe: "1m" | "5m" | "15m" | "1H" | "6H" | "1D"
//
// ADD_DRAWING / MODIFY_DRAWING:
//   drawing: Drawing
//
// DELETE_DRAWING:
//   drawingId: string

// Server -> Client
// ROOM_WELCOME (joiner only):
//   participantId: string
//   isHost: boolean
//   activeUsers: string[]
//
// USER_JOINED / USER_LEFT:
//   displayName: string
//   numActiveUsers: number
//
// HOST_CHANGED:
//   participantId: string
//   displayName: string

var ErrMalformedAction = errors.New("malformed action")
var ErrRoomNotFound = errors.New("room not found")

// CloseRoomNotFound is the socket close code sent when the requested room does
// not exist. Clients treat it as terminal.
const CloseRoomNotFound = 4004

type ActionType string

const (
	ActionUserJoined    ActionType = "USER_JOINED"
	ActionUserLeft      ActionType = "USER_LEFT"
	ActionSyncFullState ActionType = "SYNC_FULL_STATE"
	ActionSelectChart   ActionType = "SELECT_CHART"
	ActionAddDrawing    ActionType = "ADD_DRAWING"
	ActionDeleteDrawing ActionType = "DELETE_DRAWING"
	ActionModifyDrawing ActionType = "MODIFY_DRAWING"
	ActionRoomWelcome   ActionType = "ROOM_WELCOME"
	ActionHostChanged   ActionType = "HOST_CHANGED"

	// Local only, never written to the socket.
	ActionCreateCollabRoom        ActionType = "CREATE_COLLAB_ROOM"
	ActionJoinCollabRoom          ActionType = "JOIN_COLLAB_ROOM"
	ActionLeaveCollabRoom         ActionType = "LEAVE_COLLAB_ROOM"
	ActionSetConnectionStatus     ActionType = "SET_CONNECTION_STATUS"
	ActionSetChartConnectionState ActionType = "SET_CHART_CONNECTION_STATE"
	ActionEndLoading              ActionType = "END_LOADING"
	ActionStartTool               ActionType = "START_TOOL"
	ActionAddToolPoint            ActionType = "ADD_TOOL_POINT"
	ActionCancelTool              ActionType = "CANCEL_TOOL"
	ActionSelectDrawing           ActionType = "SELECT_DRAWING"
	ActionInitializeDrawings      ActionType = "INITIALIZE_DRAWINGS"
	ActionUpdateSettings          ActionType = "UPDATE_SETTINGS"
	ActionSetTimezone             ActionType = "SET_TIMEZONE"
	ActionToggleSettings          ActionType = "TOGGLE_SETTINGS"
	ActionToggleCollabWindow      ActionType = "TOGGLE_COLLAB_WINDOW"
	ActionCleanupState            ActionType = "CLEANUP_STATE"
)

// Action is the {type, payload} envelope shared by the reducer and the wire.
// Payload stays raw until a consumer decodes it for its type.
type Action struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserPresencePayload struct {
	DisplayName    string `json:"displayName"`
	NumActiveUsers int    `json:"numActiveUsers,omitempty"`
}

type WelcomePayload struct {
	ParticipantID string   `json:"participantId"`
	IsHost        bool     `json:"isHost"`
	ActiveUsers   []string `json:"activeUsers"`
}

type HostChangedPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type SyncFullStatePayload struct {
	State Snapshot `json:"state"`
}

type SelectChartPayload struct {
	Product   Product   `json:"product"`
	Timeframe Timeframe `json:"timeframe"`
}

type DrawingPayload struct {
	Drawing Drawing `json:"drawing"`
}

type DeleteDrawingPayload struct {
	DrawingID string `json:"drawingId"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type ConnectionStatusPayload struct {
	Status ConnectionStatus `json:"status"`
}

type ChartConnectionPayload struct {
	State ConnectionState `json:"state"`
}

type StartToolPayload struct {
	Tool DrawingType `json:"tool"`
}

type ToolPointPayload struct {
	Point Point `json:"point"`
}

type SelectDrawingPayload struct {
	DrawingID string `json:"drawingId"` // empty clears the selection
}

type InitializeDrawingsPayload struct {
	Drawings []Drawing `json:"drawings"`
}

type UpdateSettingsPayload struct {
	Settings ChartSettings `json:"settings"`
}

type SetTimezonePayload struct {
	Timezone string `json:"timezone"`
}

type TogglePayload struct {
	State bool `json:"state"`
}

// opaqueState is how the server sees SYNC_FULL_STATE: present, but not interpreted.
type opaqueState struct {
	State json.RawMessage `json:"state"`
}

// wirePayloads lists every type allowed on the socket with a validator for its payload.
var wirePayloads = map[ActionType]func(json.RawMessage) error{
	ActionUserJoined:  decodeInto[UserPresencePayload],
	ActionUserLeft:    decodeInto[UserPresencePayload],
	ActionRoomWelcome: decodeInto[WelcomePayload],
	ActionHostChanged: decodeInto[HostChangedPayload],
	ActionSyncFullState: func(raw json.RawMessage) error {
		var p opaqueState
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if len(p.State) == 0 || string(p.State) == "null" {
			return errors.New("missing state")
		}
		return nil
	},
	ActionSelectChart: func(raw json.RawMessage) error {
		var p SelectChartPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.Product.Symbol == "" || p.Product.Exchange == "" {
			return errors.New("missing product")
		}
		return nil
	},
	ActionAddDrawing:    validateDrawing,
	ActionModifyDrawing: validateDrawing,
	ActionDeleteDrawing: func(raw json.RawMessage) error {
		var p DeleteDrawingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.DrawingID == "" {
			return errors.New("missing drawingId")
		}
		return nil
	},
}

// relayable are the types a client may send for fan-out to the rest of the room.
var relayable = map[ActionType]bool{
	ActionSyncFullState: true,
	ActionSelectChart:   true,
	ActionAddDrawing:    true,
	ActionDeleteDrawing: true,
	ActionModifyDrawing: true,
}

func decodeInto[T any](raw json.RawMessage) error {
	var v T
	return json.Unmarshal(raw, &v)
}

func validateDrawing(raw json.RawMessage) error {
	var p DrawingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	return p.Drawing.Validate()
}

// IsWire reports whether t may travel over the socket.
func (t ActionType) IsWire() bool {
	_, ok := wirePayloads[t]
	return ok
}

// IsRelayable reports whether a client-originated action of type t is fanned out by the room.
func (t ActionType) IsRelayable() bool { return relayable[t] }

// NewAction builds an envelope, marshalling payload (nil means no payload).
func NewAction(t ActionType, payload any) (Action, error) {
	if payload == nil {
		return Action{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Action{Type: t, Payload: raw}, nil
}

// MustAction is NewAction for payloads that always marshal (plain structs of the types above).
func MustAction(t ActionType, payload any) Action {
	a, err := NewAction(t, payload)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Action) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeFrame parses one socket frame and validates it as a wire action.
func DecodeFrame(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	validate, ok := wirePayloads[a.Type]
	if !ok {
		return Action{}, fmt.Errorf("%w: unknown type %q", ErrMalformedAction, a.Type)
	}
	if err := validate(a.Payload); err != nil {
		return Action{}, fmt.Errorf("%w: %s: %v", ErrMalformedAction, a.Type, err)
	}
	return a, nil
}

// DecodePayload unmarshals the payload of a into T.
func DecodePayload[T any](a Action) (T, error) {
	var v T
	if len(a.Payload) == 0 {
		return v, fmt.Errorf("%w: %s has no payload", ErrMalformedAction, a.Type)
	}
	if err := json.Unmarshal(a.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrMalformedAction, a.Type, err)
	}
	return v, nil
}
