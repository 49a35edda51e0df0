package catalog

import (
	"context"
	"fmt"
	"sort"

	"smallbiznis-reward/pkg/db/option"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Repository resolves users and works by id. Lookups of missing ids fail
// with errutil.StatusNotFound.
type Repository interface {
	FindUser(ctx context.Context, id int64) (*User, error)
	FindWork(ctx context.Context, id int64) (*Work, error)
	// FindUsers returns the users for ids keyed by id. Any missing id fails
	// the whole call.
	FindUsers(ctx context.Context, ids []int64) (map[int64]*User, error)
	FindWorks(ctx context.Context, ids []int64) (map[int64]*Work, error)
}

var Module = fx.Module("catalog.repository",
	fx.Provide(NewRepository),
)

type repo struct {
	users repository.Repository[User]
	works repository.Repository[Work]
}

type RepositoryParams struct {
	fx.In
	DB *gorm.DB
}

func NewRepository(p RepositoryParams) Repository {
	return &repo{
		users: repository.ProvideStore[User](p.DB),
		works: repository.ProvideStore[Work](p.DB),
	}
}

func (r *repo) FindUser(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, errutil.NotFound(fmt.Sprintf("user %d not found", id), nil)
	}
	u, err := r.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound(fmt.Sprintf("user %d not found", id), nil)
	}
	return u, nil
}

func (r *repo) FindWork(ctx context.Context, id int64) (*Work, error) {
	if id <= 0 {
		return nil, errutil.NotFound(fmt.Sprintf("work %d not found", id), nil)
	}
	w, err := r.works.FindOne(ctx, &Work{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load work", err)
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("work %d not found", id), nil)
	}
	return w, nil
}

func (r *repo) FindUsers(ctx context.Context, ids []int64) (map[int64]*User, error) {
	if len(ids) == 0 {
		return map[int64]*User{}, nil
	}
	rows, err := r.users.Find(ctx, &User{}, option.ApplyOperator(option.Condition{
		Field:    "id",
		Operator: option.IN,
		Value:    ids,
	}))
	if err != nil {
		return nil, errutil.Internal("failed to load users", err)
	}

	out := make(map[int64]*User, len(rows))
	for _, u := range rows {
		out[u.ID] = u
	}
	if missing := missingIDs(ids, out); len(missing) > 0 {
		return nil, errutil.NotFound(fmt.Sprintf("users %v not found", missing), nil)
	}
	return out, nil
}

func (r *repo) FindWorks(ctx context.Context, ids []int64) (map[int64]*Work, error) {
	if len(ids) == 0 {
		return map[int64]*Work{}, nil
	}
	rows, err := r.works.Find(ctx, &Work{}, option.ApplyOperator(option.Condition{
		Field:    "id",
		Operator: option.IN,
		Value:    ids,
	}))
	if err != nil {
		return nil, errutil.Internal("failed to load works", err)
	}

	out := make(map[int64]*Work, len(rows))
	for _, w := range rows {
		out[w.ID] = w
	}
	if missing := missingIDs(ids, out); len(missing) > 0 {
		return nil, errutil.NotFound(fmt.Sprintf("works %v not found", missing), nil)
	}
	return out, nil
}

func missingIDs[T any](ids []int64, found map[int64]T) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
