package client

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/collab"
	"github.com/DoyleJ11/chart-collab-backend/internal/engine"
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

const DefaultSettleDelay = 100 * time.Millisecond

// DrawingCache persists the live drawings of each chart locally.
type DrawingCache interface {
	GetDrawings(chartID string) ([]types.Drawing, error)
	SetDrawings(chartID string, drawings []types.Drawing) error
}

// MarketFeed streams prices for the chart on screen. Both subscribe calls return
// their unsubscribe function.
type MarketFeed interface {
	Subscribe(product types.Product, onTick func(types.Tick)) func()
	SubscribeStatus(onStatus func(types.ConnectionState)) func()
}

// Sender is the outbound half of a room connection.
type Sender interface {
	Send(a types.Action) bool
}

type Options struct {
	// SettleDelay is how long the host waits after a join before pushing full state.
	SettleDelay time.Duration
	Cache       DrawingCache
	Feed        MarketFeed
	// NewDrawingID defaults to random UUIDs.
	NewDrawingID func() string
}

// Store owns one client's state. Every transition, local or remote, goes through
// engine.Reduce under the store lock.
type Store struct {
	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	state       engine.State
	sender      Sender
	settle      *time.Timer
	initialized string // chart id whose cached drawings have been loaded
	dirty       bool   // drawings changed since the last cache write
	subscribed  types.Product
	unsubTicks  func()
	unsubStatus func()
	closed      bool
	conn        *collab.Conn

	lmu       sync.Mutex
	listeners []func(engine.State)
	tickFns   []func(types.Tick)
}

func NewStore(opts Options, log *zap.Logger) *Store {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.NewDrawingID == nil {
		opts.NewDrawingID = uuid.NewString
	}
	s := &Store{
		opts:  opts,
		log:   log.Named("store"),
		state: engine.NewState(),
	}

	s.mu.Lock()
	s.afterChange()
	s.mu.Unlock()

	if opts.Feed != nil {
		unsub := opts.Feed.SubscribeStatus(func(cs types.ConnectionState) {
			s.Dispatch(types.MustAction(types.ActionSetChartConnectionState, types.ChartConnectionPayload{State: cs}))
		})
		s.mu.Lock()
		s.unsubStatus = unsub
		s.mu.Unlock()
	}
	return s
}

// State returns a snapshot of the current state. Its slices must not be modified.
func (s *Store) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers fn to receive the state after every transition.
func (s *Store) OnChange(fn func(engine.State)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnTick registers fn for price updates of the current chart.
func (s *Store) OnTick(fn func(types.Tick)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.tickFns = append(s.tickFns, fn)
}

// Dispatch applies a user action locally and, when it is shared with the room,
// forwards it. Local application never waits for the server.
func (s *Store) Dispatch(a types.Action) {
	s.mu.Lock()
	st := s.apply(a)
	sender := s.sender
	s.mu.Unlock()

	if a.Type.IsRelayable() && sender != nil {
		sender.Send(a)
	}
	s.notify(st)
}

// Apply handles an action received from the room.
func (s *Store) Apply(a types.Action) {
	s.mu.Lock()
	st := s.apply(a)
	if a.Type == types.ActionUserJoined && st.Collaboration.IsHost {
		s.scheduleFullState()
	}
	s.mu.Unlock()

	s.notify(st)
}

// Attach routes relayable dispatches to sender. nil detaches.
func (s *Store) Attach(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
	if sender == nil && s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

func (s *Store) SelectChart(product types.Product, timeframe types.Timeframe) {
	s.Dispatch(types.MustAction(types.ActionSelectChart, types.SelectChartPayload{Product: product, Timeframe: timeframe}))
}

func (s *Store) DeleteDrawing(id string) {
	s.Dispatch(types.MustAction(types.ActionDeleteDrawing, types.DeleteDrawingPayload{DrawingID: id}))
}

func (s *Store) ModifyDrawing(d types.Drawing) {
	s.Dispatch(types.MustAction(types.ActionModifyDrawing, types.DrawingPayload{Drawing: d}))
}

func (s *Store) SelectDrawing(id string) {
	s.Dispatch(types.MustAction(types.ActionSelectDrawing, types.SelectDrawingPayload{DrawingID: id}))
}

func (s *Store) StartTool(t types.DrawingType) {
	s.Dispatch(types.MustAction(types.ActionStartTool, types.StartToolPayload{Tool: t}))
}

func (s *Store) CancelTool() {
	s.Dispatch(types.MustAction(types.ActionCancelTool, nil))
}

// AddToolPoint feeds a click to the active tool. The point that completes the
// drawing turns it into an ADD_DRAWING, which is returned.
func (s *Store) AddToolPoint(p types.Point) (types.Drawing, bool) {
	s.mu.Lock()
	st := s.apply(types.MustAction(types.ActionAddToolPoint, types.ToolPointPayload{Point: p}))
	tool := st.Tools
	n, err := types.Arity(tool.Active)
	if err != nil || len(tool.Points) < n {
		s.mu.Unlock()
		s.notify(st)
		return types.Drawing{}, false
	}

	d, err := types.NewDrawing(tool.Active, s.opts.NewDrawingID(), tool.Points)
	s.apply(types.MustAction(types.ActionCancelTool, nil))
	s.mu.Unlock()
	if err != nil {
		s.log.Error("build drawing from tool", zap.String("tool", string(tool.Active)), zap.Error(err))
		s.notify(s.State())
		return types.Drawing{}, false
	}

	s.Dispatch(types.MustAction(types.ActionAddDrawing, types.DrawingPayload{Drawing: d}))
	return d, true
}

// Close stops timers and feed subscriptions and leaves any room.
func (s *Store) Close() {
	s.LeaveRoom()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.unsubTicks != nil {
		s.unsubTicks()
		s.unsubTicks = nil
	}
	if s.unsubStatus != nil {
		s.unsubStatus()
		s.unsubStatus = nil
	}
}

// apply runs the reducer and the local side effects of the transition. Callers
// hold s.mu.
func (s *Store) apply(a types.Action) engine.State {
	if a.Type == types.ActionSyncFullState {
		s.openSnapshotChart(a)
	}
	prev := s.state
	s.state = engine.Reduce(s.state, a)
	switch {
	case prev.Chart.ID != s.state.Chart.ID:
		s.flush(prev.Chart)
	case !sameDrawings(prev.Chart.Drawings, s.state.Chart.Drawings):
		s.dirty = true
	}
	s.afterChange()
	return s.state
}

// openSnapshotChart switches to the chart a full-state sync describes before the
// sync is merged, so its drawings land on top of that chart's cached set.
func (s *Store) openSnapshotChart(a types.Action) {
	p, err := types.DecodePayload[types.SyncFullStatePayload](a)
	if err != nil {
		return
	}
	product := p.State.Chart.Product
	if product.Symbol == "" || product.ChartID() == s.state.Chart.ID {
		return
	}
	s.apply(types.MustAction(types.ActionSelectChart, types.SelectChartPayload{
		Product:   product,
		Timeframe: p.State.Chart.Timeframe,
	}))
}

// flush writes the unsaved drawings of a chart that is being left. Switching
// charts ends any edit, so the idle check of persist does not apply.
func (s *Store) flush(c engine.Chart) {
	if s.opts.Cache != nil && s.dirty {
		if err := s.opts.Cache.SetDrawings(c.ID, c.LiveDrawings()); err != nil {
			s.log.Warn("persist drawings", zap.String("chart", c.ID), zap.Error(err))
		}
	}
	s.dirty = false
}

func (s *Store) afterChange() {
	if s.state.Chart.ID != s.initialized {
		s.initChart()
	}
	if s.opts.Feed != nil && s.state.Chart.Product != s.subscribed {
		s.resubscribe()
	}
	s.persist()
}

// initChart loads the cached drawings of a chart when it is opened.
func (s *Store) initChart() {
	id := s.state.Chart.ID
	s.initialized = id
	if s.opts.Cache == nil {
		return
	}
	cached, err := s.opts.Cache.GetDrawings(id)
	if err != nil {
		s.log.Warn("load cached drawings", zap.String("chart", id), zap.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}
	prev := s.state.Chart.Drawings
	s.state = engine.Reduce(s.state, types.MustAction(types.ActionInitializeDrawings, types.InitializeDrawingsPayload{Drawings: cached}))
	if !sameDrawings(prev, s.state.Chart.Drawings) {
		s.dirty = true
	}
}

// persist writes drawings once the user is not mid-edit.
func (s *Store) persist() {
	if s.opts.Cache == nil || !s.dirty {
		return
	}
	if s.state.Tools.Active != "" || s.state.Chart.Selected != "" {
		return
	}
	if err := s.opts.Cache.SetDrawings(s.state.Chart.ID, s.state.Chart.LiveDrawings()); err != nil {
		s.log.Warn("persist drawings", zap.String("chart", s.state.Chart.ID), zap.Error(err))
		return
	}
	s.dirty = false
}

func (s *Store) resubscribe() {
	if s.unsubTicks != nil {
		s.unsubTicks()
	}
	s.subscribed = s.state.Chart.Product
	s.unsubTicks = s.opts.Feed.Subscribe(s.subscribed, s.tick)
}

func (s *Store) tick(t types.Tick) {
	s.lmu.Lock()
	fns := slices.Clone(s.tickFns)
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

// scheduleFullState (re)arms the host's settle timer. Callers hold s.mu.
func (s *Store) scheduleFullState() {
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = time.AfterFunc(s.opts.SettleDelay, s.sendFullState)
}

func (s *Store) sendFullState() {
	s.mu.Lock()
	if s.closed || s.sender == nil || !s.state.Collaboration.IsHost {
		s.mu.Unlock()
		return
	}
	snap := s.state.Snapshot()
	sender := s.sender
	s.settle = nil
	s.mu.Unlock()

	a, err := types.NewAction(types.ActionSyncFullState, types.SyncFullStatePayload{State: snap})
	if err != nil {
		s.log.Error("encode full state", zap.Error(err))
		return
	}
	if !sender.Send(a) {
		s.log.Debug("full state not sent, connection not open")
	}
}

func (s *Store) notify(st engine.State) {
	s.lmu.Lock()
	fns := slices.Clone(s.listeners)
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// sameDrawings reports whether two collections share storage. The reducer copies
// on every change, so this is an identity check.
func sameDrawings(a, b []types.Drawing) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
