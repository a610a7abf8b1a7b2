// Package ports defines the core interfaces for the application.
package ports

import "go.trai.ch/cellar/internal/core/domain"

// FormulaLoader produces package specs from formula files.
//
//go:generate go run go.uber.org/mock/mockgen -source=formula_loader.go -destination=mocks/mock_formula_loader.go -package=mocks
type FormulaLoader interface {
	// Load reads every formula in dir for the target platform and returns the populated store.
	Load(dir string, platform domain.Platform) (*domain.SpecStore, error)
}
