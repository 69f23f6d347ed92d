package models

import "time"

// Requests for the scanner HTTP endpoints.

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"288" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
}

type ScanRequest struct {
	Symbol  string `json:"symbol" validate:"required"`
	Persist bool   `json:"persist"`
}

type ReplayRequest struct {
	Setup        Setup `json:"setup"`
	Bars         []Bar `json:"bars" validate:"required,min=1"`
	MaxLookahead int   `json:"max_lookahead" default:"288" validate:"gte=1,lte=10000"`
}

type BacktestRequest struct {
	Symbol  string    `json:"symbol" validate:"required"`
	From    time.Time `json:"from" validate:"required"`
	To      time.Time `json:"to" validate:"required,gtfield=From"`
	Workers int       `json:"workers" default:"4" validate:"gte=1,lte=64"`
	Persist bool      `json:"persist"`
}
