package serial

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"go.uber.org/zap"
)

// SnapshotOptions filters what CreateSnapshot captures. IncludeEntities is
// applied first, then EntityPredicate, then the component type lists. When
// IncludeComponentTypes is set, ExcludeComponentTypes is ignored.
type SnapshotOptions struct {
	IncludeEntities       []ecs.EntityID
	EntityPredicate       func(w *ecs.World, id ecs.EntityID) bool
	IncludeComponentTypes []string
	ExcludeComponentTypes []string
}

type CreateResult struct {
	Snapshot *Snapshot
	Duration time.Duration
	Warnings []string
}

type LoadOptions struct {
	// ClearExisting wipes the World's entities and components first and keeps
	// snapshot ids where possible. Otherwise entities get fresh ids.
	ClearExisting bool
	// ValidateVersion rejects snapshots of another major version.
	ValidateVersion bool
	// Strict rejects component types that have no registered decoder.
	Strict bool
}

type LoadResult struct {
	Success          bool
	EntitiesLoaded   int
	ComponentsLoaded int
	Duration         time.Duration
	Err              error
	Warnings         []string
	// IDMap maps snapshot ids to the ids assigned in the World.
	IDMap map[ecs.EntityID]ecs.EntityID
}

// Serializer builds snapshots from Worlds and loads them back.
type Serializer struct {
	registry      *Registry
	expectedMajor int
	log           *zap.Logger
}

type Option func(*Serializer)

func WithRegistry(r *Registry) Option {
	return func(s *Serializer) { s.registry = r }
}

func WithExpectedMajor(major int) Option {
	return func(s *Serializer) { s.expectedMajor = major }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Serializer) { s.log = log }
}

func NewSerializer(opts ...Option) *Serializer {
	s := &Serializer{
		registry:      NewRegistry(),
		expectedMajor: DefaultMajor,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Serializer) Registry() *Registry { return s.registry }

// IsVersionCompatible reports whether version matches the expected major.
func (s *Serializer) IsVersionCompatible(version string) bool {
	return IsVersionCompatible(version, s.expectedMajor)
}

// CreateSnapshot captures w according to opts. The World is not modified.
func (s *Serializer) CreateSnapshot(w *ecs.World, opts SnapshotOptions) (CreateResult, error) {
	start := time.Now()
	var warnings []string

	var ids []ecs.EntityID
	if len(opts.IncludeEntities) > 0 {
		seen := make(map[ecs.EntityID]bool, len(opts.IncludeEntities))
		for _, id := range opts.IncludeEntities {
			if seen[id] {
				continue
			}
			seen[id] = true
			if !w.IsAlive(id) {
				warnings = append(warnings, fmt.Sprintf("included entity %d does not exist", id))
				continue
			}
			ids = append(ids, id)
		}
		slices.Sort(ids)
	} else {
		ids = w.Entities()
	}

	include := toSet(opts.IncludeComponentTypes)
	exclude := toSet(opts.ExcludeComponentTypes)

	records := make([]EntityRecord, 0, len(ids))
	for _, id := range ids {
		if opts.EntityPredicate != nil && !opts.EntityPredicate(w, id) {
			continue
		}
		rec := EntityRecord{ID: id, Components: []ComponentRecord{}}
		for _, c := range w.ComponentsOf(id) {
			typ := c.ComponentType()
			if include != nil {
				if !include[typ] {
					continue
				}
			} else if exclude[typ] {
				continue
			}
			data, err := json.Marshal(c)
			if err != nil {
				return CreateResult{}, fmt.Errorf("marshal %s of entity %d: %w", typ, id, err)
			}
			rec.Components = append(rec.Components, ComponentRecord{Type: typ, Data: data})
		}
		records = append(records, rec)
	}

	for _, msg := range warnings {
		s.log.Warn("snapshot warning", zap.String("warning", msg))
	}
	return CreateResult{
		Snapshot: newSnapshot(FormatVersion, records),
		Duration: time.Since(start),
		Warnings: warnings,
	}, nil
}

func toSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[v] = true
	}
	return m
}

type pendingEntity struct {
	id         ecs.EntityID
	components []ecs.Component
}

// LoadSnapshot applies snap to w. Every component is decoded before the
// World is touched, so a failed load leaves w unchanged.
func (s *Serializer) LoadSnapshot(w *ecs.World, snap *Snapshot, opts LoadOptions) LoadResult {
	start := time.Now()
	res := LoadResult{IDMap: make(map[ecs.EntityID]ecs.EntityID)}
	fail := func(err error) LoadResult {
		res.Err = err
		res.Duration = time.Since(start)
		s.log.Warn("snapshot load failed", zap.Error(err))
		return res
	}

	if snap == nil {
		return fail(&FormatError{Format: "snapshot", Reason: "nil snapshot"})
	}
	if opts.ValidateVersion && !s.IsVersionCompatible(snap.Version) {
		return fail(&VersionError{Version: snap.Version, ExpectedMajor: s.expectedMajor})
	}

	pending := make([]pendingEntity, 0, len(snap.Entities))
	unknown := make(map[string]bool)
	for _, rec := range snap.Entities {
		p := pendingEntity{id: rec.ID, components: make([]ecs.Component, 0, len(rec.Components))}
		for _, cr := range rec.Components {
			if cr.Type == "" {
				return fail(&FormatError{Format: "snapshot", Reason: fmt.Sprintf("entity %d has a component without type", rec.ID)})
			}
			c, known, err := s.registry.Decode(cr.Type, cr.Data)
			if err != nil {
				return fail(fmt.Errorf("entity %d: %w", rec.ID, err))
			}
			if !known {
				if opts.Strict {
					return fail(fmt.Errorf("entity %d: unregistered component type %q", rec.ID, cr.Type))
				}
				unknown[cr.Type] = true
			}
			p.components = append(p.components, c)
		}
		pending = append(pending, p)
	}
	for typ := range unknown {
		res.Warnings = append(res.Warnings, fmt.Sprintf("component type %q loaded as dynamic", typ))
	}
	slices.Sort(res.Warnings)

	if opts.ClearExisting {
		w.Clear()
	}
	for _, p := range pending {
		var id ecs.EntityID
		if opts.ClearExisting && w.RestoreEntity(p.id) {
			id = p.id
		} else {
			if opts.ClearExisting {
				res.Warnings = append(res.Warnings, fmt.Sprintf("entity id %d reassigned", p.id))
			}
			id = w.CreateEntity()
		}
		res.IDMap[p.id] = id
		res.EntitiesLoaded++
		for _, c := range p.components {
			if err := w.AddComponent(id, c); err != nil {
				return fail(fmt.Errorf("entity %d: %w", p.id, err))
			}
			res.ComponentsLoaded++
		}
	}

	res.Success = true
	res.Duration = time.Since(start)
	s.log.Debug("snapshot loaded",
		zap.Int("entities", res.EntitiesLoaded),
		zap.Int("components", res.ComponentsLoaded),
		zap.Duration("took", res.Duration))
	return res
}
