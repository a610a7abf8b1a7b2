// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/cellar/internal/adapters/cas"
	_ "go.trai.ch/cellar/internal/adapters/fetch"
	_ "go.trai.ch/cellar/internal/adapters/formula"
	_ "go.trai.ch/cellar/internal/adapters/fs"
	_ "go.trai.ch/cellar/internal/adapters/logger"
	_ "go.trai.ch/cellar/internal/adapters/settings"
	_ "go.trai.ch/cellar/internal/adapters/shell"
	_ "go.trai.ch/cellar/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/cellar/internal/app"
	_ "go.trai.ch/cellar/internal/engine/orchestrator"
	_ "go.trai.ch/cellar/internal/engine/resolver"
)
