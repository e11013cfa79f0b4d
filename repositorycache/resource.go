package repositorycache

import (
	"context"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/invalidation"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Model is implemented by every record a Resource caches.
type Model interface {
	GetID() string
	GetOwnerID() string
}

// Source is the part of repository.Repository[T] a Resource reads and
// writes through. Any go-repository-bun repository satisfies it.
type Source[T any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
}

var _ Source[any] = (repository.Repository[any])(nil)

var (
	// ErrNotFound is returned by Find when nothing matches.
	ErrNotFound = errors.New("record not found")
	// ErrNotOwner is returned by owner scoped reads of another user's record.
	ErrNotOwner = errors.New("record belongs to another owner")
)

// Options describe how an entity maps onto its table.
type Options struct {
	Entity cache.Entity

	// OwnerColumn scopes owner lists and counters. Default: owner_id
	OwnerColumn string
	// StatusColumn backs the status filter and counters. Default: status
	StatusColumn string
	// SearchColumns are matched case-insensitively by ListQuery.Search.
	SearchColumns []string
	// OrderBy is the stable order of list pages. Default: created_at DESC, id
	OrderBy string

	TTL    cache.TTLPolicy
	Logger *zap.Logger
}

// Resource serves cached reads of one entity and runs its writes through
// the invalidation dispatcher.
type Resource[T Model] struct {
	source     Source[T]
	cache      *cache.ReadThrough
	dispatcher *invalidation.Dispatcher
	opts       Options
	logger     *zap.Logger
}

// New wraps source. Reads are cached in rt; mutations invalidate through
// dispatcher, or through a dispatcher over rt when nil.
func New[T Model](source Source[T], rt *cache.ReadThrough, dispatcher *invalidation.Dispatcher, opts Options) *Resource[T] {
	if opts.OwnerColumn == "" {
		opts.OwnerColumn = "owner_id"
	}
	if opts.StatusColumn == "" {
		opts.StatusColumn = "status"
	}
	if opts.OrderBy == "" {
		opts.OrderBy = "?TableAlias.created_at DESC, ?TableAlias.id ASC"
	}
	if opts.TTL == nil {
		opts.TTL = cache.DefaultTTLPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = invalidation.NewDispatcher(rt, logger)
	}
	return &Resource[T]{
		source:     source,
		cache:      rt,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With(zap.String("entity", string(opts.Entity))),
	}
}

// Entity returns the cache entity of the resource.
func (r *Resource[T]) Entity() cache.Entity {
	return r.opts.Entity
}

// Get returns one record through the detail key.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	return cache.GetOrLoad(ctx, r.cache, cache.DetailKey(r.opts.Entity, id), r.opts.TTL.For(cache.ViewDetail),
		func(ctx context.Context) (T, error) {
			return r.source.GetByID(ctx, id)
		})
}

// GetOwned is Get restricted to records of ownerID.
func (r *Resource[T]) GetOwned(ctx context.Context, ownerID, id string) (T, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if rec.GetOwnerID() != ownerID {
		var zero T
		return zero, ErrNotOwner
	}
	return rec, nil
}

// GetPublic returns one record through the public key, served to callers
// other than the owner.
func (r *Resource[T]) GetPublic(ctx context.Context, id string) (T, error) {
	return cache.GetOrLoad(ctx, r.cache, cache.PublicDetailKey(r.opts.Entity, id), r.opts.TTL.For(cache.ViewPublic),
		func(ctx context.Context) (T, error) {
			return r.source.GetByID(ctx, id)
		})
}

// Find caches the first record matching criteria under key. The caller owns
// the key; it must be one the entity's invalidation set covers.
func (r *Resource[T]) Find(ctx context.Context, key string, view cache.View, criteria ...repository.SelectCriteria) (T, error) {
	criteria = append(criteria[:len(criteria):len(criteria)], func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(1)
	})
	return cache.GetOrLoad(ctx, r.cache, key, r.opts.TTL.For(view), func(ctx context.Context) (T, error) {
		records, _, err := r.source.List(ctx, criteria...)
		if err != nil {
			var zero T
			return zero, err
		}
		if len(records) == 0 {
			var zero T
			return zero, ErrNotFound
		}
		return records[0], nil
	})
}

// ListForOwner returns one page of ownerID's records. Owner lists are
// paginated only; search and status are ignored so the key space stays
// under UserListPrefix.
func (r *Resource[T]) ListForOwner(ctx context.Context, ownerID string, q cache.ListQuery) (cache.Page[T], error) {
	q = cache.ListQuery{Page: q.Page, Limit: q.Limit}.Normalize()
	key := cache.UserListKey(ownerID, r.opts.Entity, q.Page, q.Limit)

	return cache.GetOrLoad(ctx, r.cache, key, r.opts.TTL.For(cache.ViewList), func(ctx context.Context) (cache.Page[T], error) {
		return r.page(ctx, q, r.ownedBy(ownerID))
	})
}

// ListAll returns one page of the global list with search and status
// filters applied.
func (r *Resource[T]) ListAll(ctx context.Context, q cache.ListQuery) (cache.Page[T], error) {
	q = q.Normalize()
	key := cache.AllListKey(r.opts.Entity, q)

	return cache.GetOrLoad(ctx, r.cache, key, r.opts.TTL.For(cache.ViewList), func(ctx context.Context) (cache.Page[T], error) {
		var criteria []repository.SelectCriteria
		if q.Status != "" {
			criteria = append(criteria, r.withStatus(q.Status))
		}
		if q.Search != "" && len(r.opts.SearchColumns) > 0 {
			criteria = append(criteria, r.matching(q.Search))
		}
		return r.page(ctx, q, criteria...)
	})
}

// CountForOwner caches how many of ownerID's records have status, e.g. the
// unread notification badge.
func (r *Resource[T]) CountForOwner(ctx context.Context, ownerID, status string) (int, error) {
	key := cache.UserCounterKey(ownerID, r.opts.Entity, status)
	return cache.GetOrLoad(ctx, r.cache, key, r.opts.TTL.For(cache.ViewCounter), func(ctx context.Context) (int, error) {
		return r.source.Count(ctx, r.ownedBy(ownerID), r.withStatus(status))
	})
}

// Total caches the number of records of the entity.
func (r *Resource[T]) Total(ctx context.Context) (int, error) {
	return cache.GetOrLoad(ctx, r.cache, cache.StatsKey(r.opts.Entity), r.opts.TTL.For(cache.ViewStats), func(ctx context.Context) (int, error) {
		return r.source.Count(ctx)
	})
}

func (r *Resource[T]) page(ctx context.Context, q cache.ListQuery, criteria ...repository.SelectCriteria) (cache.Page[T], error) {
	order := r.opts.OrderBy
	criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.OrderExpr(order).Limit(q.Limit).Offset(q.Offset())
	})

	records, total, err := r.source.List(ctx, criteria...)
	if err != nil {
		return cache.Page[T]{}, err
	}
	if records == nil {
		records = []T{}
	}
	return cache.Page[T]{Records: records, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (r *Resource[T]) ownedBy(ownerID string) repository.SelectCriteria {
	col := r.opts.OwnerColumn
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(col), ownerID)
	}
}

func (r *Resource[T]) withStatus(status string) repository.SelectCriteria {
	col := r.opts.StatusColumn
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(col), status)
	}
}

func (r *Resource[T]) matching(term string) repository.SelectCriteria {
	cols := r.opts.SearchColumns
	pattern := ContainsPattern(term)
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, col := range cols {
				q = q.WhereOr("LOWER(?TableAlias.?) LIKE ? ESCAPE '"+LikeEscape+"'", bun.Ident(col), pattern)
			}
			return q
		})
	}
}

// Create inserts record, then invalidates the owner's lists and the global
// lists.
func (r *Resource[T]) Create(ctx context.Context, record T) (T, error) {
	var out T
	err := r.dispatcher.AfterWrite(ctx, func(ctx context.Context) ([]invalidation.Event, error) {
		created, err := r.source.Create(ctx, record)
		if err != nil {
			return nil, err
		}
		out = created
		return []invalidation.Event{r.event(invalidation.KindCreated, created)}, nil
	})
	if err != nil {
		r.logger.Error("create failed", zap.Error(err))
	}
	return out, err
}

// Update writes record, then invalidates its detail entries and every list
// it may appear on. A change of owner invalidates both owners.
func (r *Resource[T]) Update(ctx context.Context, record T) (T, error) {
	var out T
	err := r.dispatcher.AfterWrite(ctx, func(ctx context.Context) ([]invalidation.Event, error) {
		events := []invalidation.Event{}
		if prev, err := r.source.GetByID(ctx, record.GetID()); err == nil && prev.GetOwnerID() != record.GetOwnerID() {
			events = append(events, r.event(invalidation.KindUpdated, prev))
		}

		updated, err := r.source.Update(ctx, record)
		if err != nil {
			return nil, err
		}
		out = updated
		return append(events, r.event(invalidation.KindUpdated, updated)), nil
	})
	if err != nil {
		r.logger.Error("update failed", zap.String("id", record.GetID()), zap.Error(err))
	}
	return out, err
}

// Delete removes record and invalidates like Update.
func (r *Resource[T]) Delete(ctx context.Context, record T) error {
	err := r.dispatcher.AfterWrite(ctx, func(ctx context.Context) ([]invalidation.Event, error) {
		if err := r.source.Delete(ctx, record); err != nil {
			return nil, err
		}
		return []invalidation.Event{r.event(invalidation.KindDeleted, record)}, nil
	})
	if err != nil {
		r.logger.Error("delete failed", zap.String("id", record.GetID()), zap.Error(err))
	}
	return err
}

func (r *Resource[T]) event(kind invalidation.Kind, record T) invalidation.Event {
	return invalidation.Event{
		Kind:    kind,
		Entity:  r.opts.Entity,
		ID:      record.GetID(),
		OwnerID: record.GetOwnerID(),
	}
}
