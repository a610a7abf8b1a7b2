package fetch

import (
	"context"
	"net/http"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/cellar/internal/adapters/settings"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the fetcher Graft node.
const NodeID graft.ID = "adapter.fetcher"

func init() {
	graft.Register(graft.Node[ports.Fetcher]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.Fetcher, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			client := &http.Client{Timeout: cfg.Fetch.Timeout}
			return New(cfg.DownloadDir, client, Policy{
				MaxAttempts:     cfg.Fetch.MaxAttempts,
				InitialInterval: cfg.Fetch.InitialInterval,
				MaxInterval:     cfg.Fetch.MaxInterval,
			}, log)
		},
	})
}
