package entity

import (
	"reflect"
	"slices"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// Instance is one entity row in memory. Every read goes through Get and every
// write through Set, which records the dirty delta and re-evaluates derived
// attributes. An Instance is owned by one logical operation and is not safe
// for concurrent use.
type Instance struct {
	meta *metadata.ClassMetadata

	values    map[string]any
	committed map[string]any
	loaded    map[string]struct{}
	dirty     map[string]struct{}

	// calculated attribute cache; a false/missing flag means stale
	cache  map[string]any
	cached map[string]bool

	via    *metadata.Traversal
	joined map[string]any

	// pre-change state of non-persisted properties, for Rollback
	prior map[string]priorValue

	isNew bool
}

type priorValue struct {
	value  any
	loaded bool
}

func newInstance(meta *metadata.ClassMetadata) *Instance {
	return &Instance{
		meta:      meta,
		values:    make(map[string]any),
		committed: make(map[string]any),
		loaded:    make(map[string]struct{}),
		dirty:     make(map[string]struct{}),
		cache:     make(map[string]any),
		cached:    make(map[string]bool),
		prior:     make(map[string]priorValue),
	}
}

func checkFrozen(meta *metadata.ClassMetadata) error {
	if meta == nil {
		return apperror.NewProgramming("entity metadata is nil")
	}
	if !meta.Frozen() {
		return apperror.NewProgramming("%s: registry is not frozen", meta.Name())
	}
	return nil
}

// New creates an unsaved instance with the class defaults applied.
// Defaults go through Set so derived attributes see them.
func New(meta *metadata.ClassMetadata) (*Instance, error) {
	if err := checkFrozen(meta); err != nil {
		return nil, err
	}
	inst := newInstance(meta)
	inst.isNew = true
	for _, p := range meta.Properties() {
		d, ok := meta.Default(p)
		if !ok {
			continue
		}
		if err := inst.Set(p, d.Resolve()); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Hydrate creates an instance for a stored row. Only the given properties are
// loaded; reading any other declared property fails with UnloadedDependency.
func Hydrate(meta *metadata.ClassMetadata, row map[string]any) (*Instance, error) {
	if err := checkFrozen(meta); err != nil {
		return nil, err
	}
	inst := newInstance(meta)
	if err := inst.Hydrate(row); err != nil {
		return nil, err
	}
	return inst, nil
}

// Class returns the class name.
func (i *Instance) Class() string { return i.meta.Name() }

// Meta returns the class metadata.
func (i *Instance) Meta() *metadata.ClassMetadata { return i.meta }

// IsNew reports whether the instance has never been committed.
func (i *Instance) IsNew() bool { return i.isNew }

// ID returns the value of the "id" property, or Nil when it is not loaded.
func (i *Instance) ID() id.ID {
	v, ok := i.values["id"]
	if !ok {
		return id.Nil()
	}
	out, err := id.FromValue(v)
	if err != nil {
		return id.Nil()
	}
	return out
}

// Via returns the join hop this instance was loaded through, if any.
func (i *Instance) Via() *metadata.Traversal { return i.via }

// IsLoaded reports whether property holds a hydrated value. A calculated
// attribute counts as loaded when all its dependencies are.
func (i *Instance) IsLoaded(property string) bool {
	if a, ok := i.meta.Computed(property); ok && a.Kind == metadata.KindCalculated {
		return i.firstMissing(a) == ""
	}
	if _, ok := i.loaded[property]; ok {
		return true
	}
	_, ok := i.joined[property]
	return ok && i.joinedVisible(property)
}

// Get returns the value of property.
//
// A declared but never fetched property fails with UnloadedDependency, which
// is distinct from a fetched NULL (nil, nil). An undeclared property, or a
// joined field read outside its join path, fails with PropertyNotFound.
func (i *Instance) Get(property string) (any, error) {
	if a, ok := i.meta.Computed(property); ok && a.Kind == metadata.KindCalculated {
		return i.calculate(a)
	}
	if _, ok := i.loaded[property]; ok {
		return i.values[property], nil
	}
	if _, ok := i.meta.JoinedField(property); ok && i.joinedVisible(property) {
		v, ok := i.joined[property]
		if !ok {
			return nil, apperror.NewUnloadedDependency(i.Class(), property, property)
		}
		return v, nil
	}
	if i.meta.Declares(property) {
		return nil, apperror.NewUnloadedDependency(i.Class(), property, property)
	}
	return nil, apperror.NewPropertyNotFound(i.Class(), property)
}

// Set is the only way to change a property. It records the dirty delta against
// the last committed value and then re-evaluates the direct dependents of
// property. Calculated attributes and joined fields cannot be assigned.
//
// On a stored instance, a write that would feed an update function whose own
// value was never hydrated fails with UnloadedDependency and changes nothing.
func (i *Instance) Set(property string, value any) error {
	if a, ok := i.meta.Computed(property); ok && a.Kind == metadata.KindCalculated {
		return apperror.NewProgramming("%s.%s: calculated attributes cannot be assigned", i.Class(), property)
	}
	if !i.meta.Declares(property) {
		if _, ok := i.meta.JoinedField(property); ok {
			return apperror.NewProgramming("%s.%s: joined fields are read-only", i.Class(), property)
		}
		return apperror.NewPropertyNotFound(i.Class(), property)
	}
	if err := i.checkUpdatable(property); err != nil {
		return err
	}

	if !i.meta.IsPersisted(property) {
		if _, seen := i.prior[property]; !seen {
			_, loaded := i.loaded[property]
			i.prior[property] = priorValue{value: i.values[property], loaded: loaded}
		}
	}
	i.values[property] = value
	i.loaded[property] = struct{}{}
	i.trackDirty(property)

	if err := i.syncForeignKey(property, value); err != nil {
		return err
	}
	return i.cascade(property)
}

// syncForeignKey copies the target id into the owned key when a root
// relationship is assigned an instance.
func (i *Instance) syncForeignKey(property string, value any) error {
	rel, ok := i.meta.Relationship(property)
	if !ok || !rel.IsRelationRoot {
		return nil
	}
	switch target := value.(type) {
	case nil:
		return i.Set(rel.IDProperty, nil)
	case *Instance:
		if target == nil {
			return i.Set(rel.IDProperty, nil)
		}
		if target.IsLoaded("id") {
			return i.Set(rel.IDProperty, target.ID())
		}
	}
	return nil
}

func (i *Instance) trackDirty(property string) {
	if !i.meta.IsPersisted(property) {
		return
	}
	old, ok := i.committed[property]
	if ok && reflect.DeepEqual(old, i.values[property]) {
		delete(i.dirty, property)
		return
	}
	i.dirty[property] = struct{}{}
}

// Hydrate loads stored values. They become the committed baseline and are not
// dirty. Stored computed attributes are taken as-is; calculated caches of
// their dependents are dropped.
func (i *Instance) Hydrate(row map[string]any) error {
	for k := range row {
		if !i.meta.Declares(k) {
			return apperror.NewPropertyNotFound(i.Class(), k)
		}
		if a, ok := i.meta.Computed(k); ok && a.Kind == metadata.KindCalculated {
			return apperror.NewProgramming("%s.%s: calculated attributes cannot be hydrated", i.Class(), k)
		}
	}
	for k, v := range row {
		i.values[k] = v
		i.loaded[k] = struct{}{}
		delete(i.prior, k)
		if i.meta.IsPersisted(k) {
			i.committed[k] = v
		}
		delete(i.dirty, k)
		i.invalidate(k)
	}
	return nil
}

// HydrateJoined attaches the instance to the join hop it was reached through
// and loads the joined fields taken from the intermediate row.
func (i *Instance) HydrateJoined(via metadata.Traversal, fields map[string]any) error {
	i.via = &via
	if i.joined == nil {
		i.joined = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, ok := i.meta.JoinedField(k); !ok || !i.joinedVisible(k) {
			return apperror.NewPropertyNotFound(i.Class(), k)
		}
		i.joined[k] = v
	}
	return nil
}

func (i *Instance) joinedVisible(property string) bool {
	if i.via == nil {
		return false
	}
	d, ok := i.meta.JoinedField(property)
	if !ok {
		return false
	}
	return slices.ContainsFunc(d.Via, func(ref metadata.JoinRef) bool {
		return ref.Class == i.via.From && ref.Property == i.via.Property
	})
}

// Loaded returns the hydrated properties in declaration order.
func (i *Instance) Loaded() []string {
	out := make([]string, 0, len(i.loaded))
	for _, p := range i.meta.Properties() {
		if _, ok := i.loaded[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// IsDirty reports whether any persisted property differs from its committed value.
func (i *Instance) IsDirty() bool { return len(i.dirty) > 0 }

// DirtyFields returns changed persisted properties in declaration order.
func (i *Instance) DirtyFields() []string {
	out := make([]string, 0, len(i.dirty))
	for _, p := range i.meta.Persisted() {
		if _, ok := i.dirty[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Change is one dirty property.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes returns old and new values of every dirty property.
func (i *Instance) Changes() map[string]Change {
	out := make(map[string]Change, len(i.dirty))
	for p := range i.dirty {
		out[p] = Change{Old: i.committed[p], New: i.values[p]}
	}
	return out
}

// Values returns the loaded persisted values.
func (i *Instance) Values() Attributes {
	out := make(Attributes, len(i.loaded))
	for p := range i.loaded {
		if i.meta.IsPersisted(p) {
			out[p] = i.values[p]
		}
	}
	return out
}

// MarkCommitted makes the current values the committed baseline.
func (i *Instance) MarkCommitted() {
	for p := range i.loaded {
		if i.meta.IsPersisted(p) {
			i.committed[p] = i.values[p]
		}
	}
	clear(i.dirty)
	clear(i.prior)
	i.isNew = false
}

// Rollback discards uncommitted changes. Properties that were never committed
// become unloaded again. Relationship values assigned since the last commit
// are restored as well.
func (i *Instance) Rollback() {
	for p, old := range i.prior {
		if old.loaded {
			i.values[p] = old.value
			i.loaded[p] = struct{}{}
			continue
		}
		delete(i.values, p)
		delete(i.loaded, p)
	}
	clear(i.prior)
	for p := range i.dirty {
		if old, ok := i.committed[p]; ok {
			i.values[p] = old
			continue
		}
		delete(i.values, p)
		delete(i.loaded, p)
	}
	clear(i.dirty)
	clear(i.cached)
	clear(i.cache)
}
