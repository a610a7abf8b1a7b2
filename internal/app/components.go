package app

import (
	"go.trai.ch/cellar/internal/adapters/settings" //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/core/ports"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App      *App
	Logger   ports.Logger
	Settings *settings.Settings
}
