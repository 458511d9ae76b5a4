package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/lifecycle"
	"advisorcrm/internal/metadata"
)

// memoryRepo is an in-memory Repository for service tests.
type memoryRepo struct {
	registry *metadata.Registry
	rows     map[string]map[id.ID]entity.Attributes
	updates  [][]string
	queries  []*metadata.Filter
	loadErr  error
}

func newMemoryRepo(reg *metadata.Registry) *memoryRepo {
	return &memoryRepo{registry: reg, rows: make(map[string]map[id.ID]entity.Attributes)}
}

func (r *memoryRepo) table(class string) map[id.ID]entity.Attributes {
	t, ok := r.rows[class]
	if !ok {
		t = make(map[id.ID]entity.Attributes)
		r.rows[class] = t
	}
	return t
}

func (r *memoryRepo) Insert(_ context.Context, instances []*entity.Instance) error {
	for _, inst := range instances {
		r.table(inst.Class())[inst.ID()] = inst.Values()
	}
	return nil
}

func (r *memoryRepo) Update(_ context.Context, instances []*entity.Instance) error {
	for _, inst := range instances {
		row := r.table(inst.Class())[inst.ID()]
		for _, f := range inst.DirtyFields() {
			row[f], _ = inst.Get(f)
		}
		r.updates = append(r.updates, inst.DirtyFields())
	}
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, instances []*entity.Instance) error {
	for _, inst := range instances {
		delete(r.table(inst.Class()), inst.ID())
	}
	return nil
}

func (r *memoryRepo) Load(_ context.Context, class string, objectID id.ID, _ ...metadata.Include) (*entity.Instance, []string, error) {
	if r.loadErr != nil {
		return nil, nil, r.loadErr
	}
	row, ok := r.table(class)[objectID]
	if !ok {
		return nil, nil, apperror.NewNotFound("row", objectID)
	}
	inst, err := entity.Hydrate(r.registry.MustGet(class), row.Clone())
	if err != nil {
		return nil, nil, err
	}
	return inst, row.Keys(), nil
}

func (r *memoryRepo) Query(_ context.Context, filter *metadata.Filter) ([]*entity.Instance, []string, error) {
	r.queries = append(r.queries, filter)
	var out []*entity.Instance
	for _, row := range r.table(filter.Class) {
		inst, err := entity.Hydrate(r.registry.MustGet(filter.Class), row.Clone())
		if err != nil {
			return nil, nil, err
		}
		out = append(out, inst)
	}
	return out, r.registry.MustGet(filter.Class).Persisted(), nil
}

var _ Repository = (*memoryRepo)(nil)

func newService(t *testing.T, define func(b *metadata.ClassBuilder)) (*Service, *memoryRepo) {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Define("Contact", func(b *metadata.ClassBuilder) {
		b.Required("id", "firstName").
			Persisted("lastName", "status").
			Default("id", func() any { return id.New() }).
			Default("status", "active")
		define(b)
	}))
	require.NoError(t, reg.Freeze())

	repo := newMemoryRepo(reg)
	svc, err := NewService(ServiceConfig{Registry: reg, Repo: repo})
	require.NoError(t, err)
	return svc, repo
}

func TestNewService_RequiresFrozenRegistry(t *testing.T) {
	reg := metadata.NewRegistry()
	_, err := NewService(ServiceConfig{Registry: reg, Repo: newMemoryRepo(reg)})
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestService_CreateLoadUpdateDelete(t *testing.T) {
	svc, repo := newService(t, func(*metadata.ClassBuilder) {})
	ctx := context.Background()

	c, err := svc.New("Contact")
	require.NoError(t, err)
	require.NoError(t, c.Set("firstName", "Jane"))

	out, err := svc.Create(ctx, c)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.False(t, c.IsNew())

	loaded, err := svc.Load(ctx, "Contact", c.ID())
	require.NoError(t, err)
	status, err := loaded.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "active", status)

	require.NoError(t, loaded.Set("lastName", "Doe"))
	_, err = svc.Update(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"lastName"}}, repo.updates)

	_, err = svc.Delete(ctx, loaded)
	require.NoError(t, err)
	_, err = svc.Load(ctx, "Contact", c.ID())
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_UpdateSkipsCleanInstances(t *testing.T) {
	svc, repo := newService(t, func(*metadata.ClassBuilder) {})
	ctx := context.Background()

	c, err := svc.New("Contact")
	require.NoError(t, err)
	require.NoError(t, c.Set("firstName", "Jane"))
	_, err = svc.Create(ctx, c)
	require.NoError(t, err)

	out, err := svc.Update(ctx, c)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Empty(t, repo.updates)
}

func TestService_RejectsWrongLifecycleUse(t *testing.T) {
	svc, _ := newService(t, func(*metadata.ClassBuilder) {})
	ctx := context.Background()

	fresh, err := svc.New("Contact")
	require.NoError(t, err)
	_, err = svc.Update(ctx, fresh)
	assert.True(t, apperror.IsProgrammingError(err))
	_, err = svc.Delete(ctx, fresh)
	assert.True(t, apperror.IsProgrammingError(err))

	_, err = svc.New("Unknown")
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestService_UpdateVetoLeavesStoreUntouched(t *testing.T) {
	svc, repo := newService(t, func(b *metadata.ClassBuilder) {
		b.Before(metadata.EventUpdate, func(_ context.Context, call *metadata.HookCall) metadata.Effect {
			status, err := call.Record.Get("status")
			if err == nil && status == "archived" {
				return metadata.Abort("archived contacts are read-only")
			}
			return metadata.Proceed()
		})
	})
	ctx := context.Background()

	c, err := svc.New("Contact")
	require.NoError(t, err)
	require.NoError(t, c.Set("firstName", "Jane"))
	require.NoError(t, c.Set("status", "archived"))
	_, err = svc.Create(ctx, c)
	require.NoError(t, err)

	require.NoError(t, c.Set("firstName", "Janet"))
	out, err := svc.Update(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAborted, out.Status)
	assert.Equal(t, "Jane", repo.rows["Contact"][c.ID()]["firstName"])
}

func TestService_QueryHooksSeeCopyWithDefaultLimit(t *testing.T) {
	svc, repo := newService(t, func(b *metadata.ClassBuilder) {
		b.Before(metadata.EventRead, func(_ context.Context, call *metadata.HookCall) metadata.Effect {
			if !call.Filter.HasCondition("status") {
				call.Filter.Where("status", metadata.NotEqual, "archived")
			}
			return metadata.Proceed()
		})
	})

	filter := &metadata.Filter{Class: "Contact"}
	_, out, err := svc.Query(context.Background(), filter)
	require.NoError(t, err)
	assert.True(t, out.OK())

	require.Len(t, repo.queries, 1)
	assert.Equal(t, DefaultQueryLimit, repo.queries[0].Limit)
	assert.True(t, repo.queries[0].HasCondition("status"))
	assert.Empty(t, filter.Items, "caller filter untouched")
}

func TestService_LoadWrapsStorageErrors(t *testing.T) {
	svc, repo := newService(t, func(*metadata.ClassBuilder) {})
	repo.loadErr = errors.New("connection refused")

	objectID := id.New()
	_, err := svc.Load(context.Background(), "Contact", objectID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInternal, appErr.Code)
	assert.Equal(t, "Contact", appErr.Details["entity"])
}

func TestService_LoadFiresReadAfter(t *testing.T) {
	var fetched []string
	svc, _ := newService(t, func(b *metadata.ClassBuilder) {
		b.After(metadata.EventRead, func(_ context.Context, call *metadata.HookCall) metadata.Effect {
			fetched = call.Fetched
			return metadata.Proceed()
		})
	})
	ctx := context.Background()

	c, err := svc.New("Contact")
	require.NoError(t, err)
	require.NoError(t, c.Set("firstName", "Jane"))
	_, err = svc.Create(ctx, c)
	require.NoError(t, err)

	_, err = svc.Load(ctx, "Contact", c.ID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "firstName", "status"}, fetched)
}
