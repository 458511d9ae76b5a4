package main

import (
	"context"
	"fmt"

	"advisorcrm/internal/config"
	"advisorcrm/internal/domain"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/infrastructure/crypto"
	"advisorcrm/internal/infrastructure/storage/postgres"
	"advisorcrm/internal/lifecycle"
	"advisorcrm/internal/metadata"
	"advisorcrm/pkg/logger"
)

// application holds the wired engine.
type application struct {
	Registry *metadata.Registry
	Pool     *postgres.Pool
	Engine   *postgres.Engine
	Audit    *postgres.AuditLog
	Service  *domain.Service
}

// setup builds the registry, storage and entity service from cfg.
func setup(ctx context.Context, cfg *config.Config) (*application, error) {
	registry, err := crm.NewRegistry(crm.NewStaticLocator())
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	logger.Info(ctx, "metadata registry initialized", "classes", len(registry.Classes()))

	codec, err := newCodec(ctx, cfg)
	if err != nil {
		return nil, err
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	txm := postgres.NewTxManager(pool)

	app, err := wire(registry, txm, codec, cfg.Audit.CompressThreshold)
	if err != nil {
		pool.Close()
		return nil, err
	}
	app.Pool = pool
	return app, nil
}

// wire connects engine, audit log, effects and service over txm.
func wire(registry *metadata.Registry, txm *postgres.TxManager, codec *domain.Codec, compressThreshold int) (*application, error) {
	engine, err := postgres.NewEngine(postgres.EngineConfig{
		Registry: registry,
		DB:       txm,
		Codec:    codec,
		Rows:     crm.Rows(),
	})
	if err != nil {
		return nil, err
	}

	audit, err := postgres.NewAuditLog(txm, compressThreshold)
	if err != nil {
		return nil, err
	}

	effects := lifecycle.NewEffects()
	if err := postgres.RegisterEffects(effects, engine, audit); err != nil {
		return nil, err
	}

	service, err := domain.NewService(domain.ServiceConfig{
		Registry:  registry,
		Repo:      engine,
		TxManager: txm,
		Effects:   effects,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		Registry: registry,
		Engine:   engine,
		Audit:    audit,
		Service:  service,
	}, nil
}

// newCodec builds the field codec. Without a master key encrypted fields
// cannot be written; config validation refuses that in production.
func newCodec(ctx context.Context, cfg *config.Config) (*domain.Codec, error) {
	if cfg.Crypto.MasterKey == "" {
		logger.Warn(ctx, "no master key configured, encrypted fields are read-only")
		return domain.NewCodec(nil), nil
	}
	cipher, err := crypto.NewFromBase64(cfg.Crypto.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	return domain.NewCodec(cipher), nil
}

// Close releases the pool.
func (a *application) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
