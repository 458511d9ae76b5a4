package domain

import (
	"context"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/core/tx"
	"advisorcrm/internal/lifecycle"
	"advisorcrm/internal/metadata"
)

// Service provides create, update, delete and read operations for every
// registered class. Hooks, validation and deferred effects run through the
// lifecycle dispatcher; statements are issued by the Repository.
type Service struct {
	registry   *metadata.Registry
	repo       Repository
	dispatcher *lifecycle.Dispatcher
}

// ServiceConfig configures the service.
type ServiceConfig struct {
	Registry  *metadata.Registry
	Repo      Repository
	TxManager tx.Manager // Optional - Passthrough when nil
	Effects   lifecycle.EffectExecutor
}

// NewService creates a service. The registry must be frozen.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil || !cfg.Registry.Frozen() {
		return nil, apperror.NewProgramming("service needs a frozen registry")
	}
	if cfg.Repo == nil {
		return nil, apperror.NewProgramming("service needs a repository")
	}
	return &Service{
		registry:   cfg.Registry,
		repo:       cfg.Repo,
		dispatcher: lifecycle.NewDispatcher(cfg.Registry, cfg.TxManager, cfg.Effects),
	}, nil
}

// Registry returns the schema registry.
func (s *Service) Registry() *metadata.Registry { return s.registry }

// Dispatcher returns the lifecycle dispatcher.
func (s *Service) Dispatcher() *lifecycle.Dispatcher { return s.dispatcher }

func (s *Service) class(name string) (*metadata.ClassMetadata, error) {
	meta, ok := s.registry.Get(name)
	if !ok {
		return nil, apperror.NewProgramming("class %q is not registered", name)
	}
	return meta, nil
}

// New creates an unsaved instance of class with defaults applied.
func (s *Service) New(class string) (*entity.Instance, error) {
	meta, err := s.class(class)
	if err != nil {
		return nil, err
	}
	return entity.New(meta)
}

// Create commits new instances as one batch.
func (s *Service) Create(ctx context.Context, instances ...*entity.Instance) (lifecycle.Outcome, error) {
	for _, inst := range instances {
		if !inst.IsNew() {
			return lifecycle.Outcome{}, apperror.NewProgramming("%s %s: create of a stored instance", inst.Class(), inst.ID())
		}
	}
	return s.dispatcher.Commit(ctx, metadata.EventCreate, instances, s.repo.Insert)
}

// Update commits changes of stored instances as one batch. Hooks run for every
// instance; only instances left dirty after the before-hooks are written.
func (s *Service) Update(ctx context.Context, instances ...*entity.Instance) (lifecycle.Outcome, error) {
	if err := requireStored("update", instances); err != nil {
		return lifecycle.Outcome{}, err
	}
	return s.dispatcher.Commit(ctx, metadata.EventUpdate, instances, func(ctx context.Context, batch []*entity.Instance) error {
		dirty := make([]*entity.Instance, 0, len(batch))
		for _, inst := range batch {
			if inst.IsDirty() {
				dirty = append(dirty, inst)
			}
		}
		if len(dirty) == 0 {
			return nil
		}
		return s.repo.Update(ctx, dirty)
	})
}

// Delete removes stored instances as one batch.
func (s *Service) Delete(ctx context.Context, instances ...*entity.Instance) (lifecycle.Outcome, error) {
	if err := requireStored("delete", instances); err != nil {
		return lifecycle.Outcome{}, err
	}
	return s.dispatcher.Commit(ctx, metadata.EventDelete, instances, s.repo.Delete)
}

func requireStored(op string, instances []*entity.Instance) error {
	for _, inst := range instances {
		if inst.IsNew() {
			return apperror.NewProgramming("%s %s of an unsaved instance", inst.Class(), op)
		}
		if id.IsNil(inst.ID()) {
			return apperror.NewProgramming("%s %s: id is not loaded", inst.Class(), op)
		}
	}
	return nil
}

// Load fetches one instance by id and fires read.after with the fetched properties.
func (s *Service) Load(ctx context.Context, class string, objectID id.ID, include ...metadata.Include) (*entity.Instance, error) {
	if _, err := s.class(class); err != nil {
		return nil, err
	}
	inst, fetched, err := s.repo.Load(ctx, class, objectID, include...)
	if err != nil {
		return nil, normalizeGetErr(err, class, objectID)
	}
	if err := s.dispatcher.AfterRead(ctx, []*entity.Instance{inst}, fetched); err != nil {
		return nil, err
	}
	return inst, nil
}

// Query reads instances through read.before and read.after hooks. The caller's
// filter is not modified; hooks see a copy.
func (s *Service) Query(ctx context.Context, filter *metadata.Filter) ([]*entity.Instance, lifecycle.Outcome, error) {
	if _, err := s.class(filter.Class); err != nil {
		return nil, lifecycle.Outcome{}, err
	}
	pending := filter.Clone()
	if pending.Limit <= 0 {
		pending.Limit = DefaultQueryLimit
	}
	return s.dispatcher.Query(ctx, pending, s.repo.Query)
}

func normalizeGetErr(err error, class string, objectID id.ID) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(class, objectID)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", class).WithDetail("id", objectID)
}
