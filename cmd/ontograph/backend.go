package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/internal/storage/neo4j"
	"github.com/scrypster/ontograph/internal/storage/postgres"
	"github.com/scrypster/ontograph/internal/storage/redis"
	"github.com/scrypster/ontograph/internal/storage/sqlite"
)

// graphBackend is what every graph store in this repo provides.
type graphBackend interface {
	storage.GraphStore
	storage.DocumentStore
	storage.GraphReader
	storage.AnalyticsWriter
}

// backend holds the opened stores for one command.
type backend struct {
	graph  graphBackend
	docs   storage.DocumentStore
	sqlite *sqlite.Store // set for the sqlite engine, for snapshots
	redis  *redis.Store
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Engine {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.graph, b.sqlite = s, s
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.graph = s
	case "neo4j":
		s, err := neo4j.Open(ctx, cfg.Neo4j)
		if err != nil {
			return nil, err
		}
		b.graph = s
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", cfg.Storage.Engine)
	}

	b.docs = b.graph
	if cfg.Storage.IdempotencyStore == "redis" {
		r, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			_ = b.graph.Close()
			return nil, err
		}
		b.redis, b.docs = r, r
	}
	return b, nil
}

func (b *backend) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	errs = append(errs, b.graph.Close())
	return errors.Join(errs...)
}
