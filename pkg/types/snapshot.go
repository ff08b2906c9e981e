package types

// Snapshot is the shared part of a client's state, carried by SYNC_FULL_STATE.
// Collaboration, tool and panel state are per client and never included.
type Snapshot struct {
	Chart    ChartSnapshot `json:"chart"`
	Settings ChartSettings `json:"settings"`
}

type ChartSnapshot struct {
	ID        string    `json:"id"`
	Product   Product   `json:"product"`
	Style     string    `json:"style"`
	Timeframe Timeframe `json:"timeframe"`
	Drawings  []Drawing `json:"drawings"` // includes tombstones
}

type Product struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// ChartID identifies the chart a product is drawn on, e.g. "SOL-USD:coinbase".
func (p Product) ChartID() string { return p.Symbol + ":" + p.Exchange }

type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1H  Timeframe = "1H"
	Timeframe6H  Timeframe = "6H"
	Timeframe1D  Timeframe = "1D"
)

var TimeframeSeconds = map[Timeframe]int{
	Timeframe1m:  60,
	Timeframe5m:  5 * 60,
	Timeframe15m: 15 * 60,
	Timeframe1H:  60 * 60,
	Timeframe6H:  6 * 60 * 60,
	Timeframe1D:  24 * 60 * 60,
}

type CrosshairMode int

const (
	CrosshairNormal CrosshairMode = iota
	CrosshairMagnet
)

type ChartSettings struct {
	Cursor     CrosshairMode `json:"cursor"`
	Timezone   string        `json:"timezone"`
	Background Background    `json:"background"`
	Candles    CandleStyle   `json:"candles"`
}

type Background struct {
	Theme string `json:"theme"` // "dark" | "light"
	Grid  Grid   `json:"grid"`
}

type Grid struct {
	VertLines bool `json:"vertLines"`
	HorzLines bool `json:"horzLines"`
}

type CandleStyle struct {
	UpColor       string `json:"upColor"`
	DownColor     string `json:"downColor"`
	BorderVisible bool   `json:"borderVisible"`
	WickUpColor   string `json:"wickUpColor"`
	WickDownColor string `json:"wickDownColor"`
}

func DefaultSettings() ChartSettings {
	return ChartSettings{
		Cursor:   CrosshairNormal,
		Timezone: "UTC",
		Background: Background{
			Theme: "dark",
			Grid:  Grid{VertLines: true, HorzLines: true},
		},
		Candles: CandleStyle{
			UpColor:       "#26a69a",
			DownColor:     "#ef5350",
			BorderVisible: false,
			WickUpColor:   "#26a69a",
			WickDownColor: "#ef5350",
		},
	}
}
