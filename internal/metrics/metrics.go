// Package metrics 进程内 expvar 计数器，/debug/vars 可读。
package metrics

import "expvar"

var (
	ResyncRuns      = expvar.NewInt("resync_runs")
	ResyncErrors    = expvar.NewInt("resync_errors")
	TickRuns        = expvar.NewInt("tick_runs")
	TicksSkipped    = expvar.NewInt("ticks_skipped")
	OrdersPlaced    = expvar.NewInt("orders_placed")
	OrdersRejected  = expvar.NewInt("orders_rejected")
	PositionsClosed = expvar.NewInt("positions_closed")
	RiskRejections  = expvar.NewInt("risk_rejections")
)
