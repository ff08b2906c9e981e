package engine

import (
	"github.com/DoyleJ11/chart-collab-backend/pkg/types"
)

var DefaultProduct = types.Product{
	Symbol:   "SOL-USD",
	Name:     "SOLUSD",
	Exchange: "coinbase",
}

func NewState() State {
	return State{
		Collaboration: Collaboration{Status: types.StatusDisconnected},
		Settings:      types.DefaultSettings(),
		Chart: Chart{
			ID:        DefaultProduct.ChartID(),
			Product:   DefaultProduct,
			Style:     "candle",
			Timeframe: types.Timeframe1m,
			Feed:      types.ConnectionState{Status: types.StatusDisconnected},
		},
	}
}

func indexOf(drawings []types.Drawing, id string) int {
	for i, d := range drawings {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// appendCopy appends d to a fresh copy of drawings.
func appendCopy(drawings []types.Drawing, d types.Drawing) []types.Drawing {
	out := make([]types.Drawing, len(drawings), len(drawings)+1)
	copy(out, drawings)
	return append(out, d)
}

func live(drawings []types.Drawing) []types.Drawing {
	out := make([]types.Drawing, 0, len(drawings))
	for _, d := range drawings {
		if !d.IsDeleted {
			out = append(out, d)
		}
	}
	return out
}

func validOnly(drawings []types.Drawing) []types.Drawing {
	out := make([]types.Drawing, 0, len(drawings))
	for _, d := range drawings {
		if d.Validate() == nil {
			out = append(out, d)
		}
	}
	return out
}
