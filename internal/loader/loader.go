// Package loader batches relation lookups made while resolving one GraphQL
// operation, so N parents sharing a relation cost one repository call per
// (entity, key kind) instead of N.
package loader

import (
	"context"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/metrics"
	"tutoring-api/internal/model"
)

const (
	batchWait     = 2 * time.Millisecond
	batchCapacity = 500
)

// Repository is the batch side of the store.
type Repository interface {
	UsersByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	PostsByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
	PostsByAuthorIDs(ctx context.Context, authorIDs []string) ([]*model.Post, error)
	AppointmentsByUserIDs(ctx context.Context, ids []string) ([]*model.Appointment, error)
	AppointmentsByTutorIDs(ctx context.Context, ids []string) ([]*model.Appointment, error)
	AppointmentsByPostIDs(ctx context.Context, ids []string) ([]*model.Appointment, error)
}

// Loaders is one set of batching loaders. A set caches what it has loaded,
// so it must not outlive the operation it was built for.
type Loaders struct {
	users         *dataloader.Loader[string, *model.User]
	posts         *dataloader.Loader[string, *model.Post]
	postsByAuthor *dataloader.Loader[string, []*model.Post]
	apptsByUser   *dataloader.Loader[string, []*model.Appointment]
	apptsByTutor  *dataloader.Loader[string, []*model.Appointment]
	apptsByPost   *dataloader.Loader[string, []*model.Appointment]
}

func New(repo Repository) *Loaders {
	return &Loaders{
		users: newLoader(byID("users", repo.UsersByIDs,
			func(u *model.User) string { return u.ID })),
		posts: newLoader(byID("posts", repo.PostsByIDs,
			func(p *model.Post) string { return p.ID })),
		postsByAuthor: newLoader(grouped("posts_by_author", repo.PostsByAuthorIDs,
			func(p *model.Post) string { return p.AuthorID })),
		apptsByUser: newLoader(grouped("appointments_by_user", repo.AppointmentsByUserIDs,
			func(a *model.Appointment) string { return a.UserID })),
		apptsByTutor: newLoader(grouped("appointments_by_tutor", repo.AppointmentsByTutorIDs,
			func(a *model.Appointment) string { return a.TutorID })),
		apptsByPost: newLoader(grouped("appointments_by_post", repo.AppointmentsByPostIDs,
			func(a *model.Appointment) string { return a.PostID })),
	}
}

func newLoader[V any](fn dataloader.BatchFunc[string, V]) *dataloader.Loader[string, V] {
	return dataloader.NewBatchedLoader(fn,
		dataloader.WithWait[string, V](batchWait),
		dataloader.WithBatchCapacity[string, V](batchCapacity),
	)
}

// byID maps each key to the entity with that id, or nil when it does not exist.
func byID[V any](name string, fetch func(context.Context, []string) ([]V, error), id func(V) string) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[V] {
		metrics.LoaderBatchSize.WithLabelValues(name).Observe(float64(len(keys)))
		rows, err := fetch(ctx, keys)
		if err != nil {
			return failAll[V](len(keys), err)
		}
		found := make(map[string]V, len(rows))
		for _, r := range rows {
			found[id(r)] = r
		}
		out := make([]*dataloader.Result[V], len(keys))
		for i, k := range keys {
			out[i] = &dataloader.Result[V]{Data: found[k]}
		}
		return out
	}
}

// grouped maps each parent key to its children, in repository order. A parent
// without children gets an empty, non-nil slice.
func grouped[V any](name string, fetch func(context.Context, []string) ([]V, error), parent func(V) string) dataloader.BatchFunc[string, []V] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[[]V] {
		metrics.LoaderBatchSize.WithLabelValues(name).Observe(float64(len(keys)))
		rows, err := fetch(ctx, keys)
		if err != nil {
			return failAll[[]V](len(keys), err)
		}
		groups := make(map[string][]V, len(keys))
		for _, r := range rows {
			p := parent(r)
			groups[p] = append(groups[p], r)
		}
		out := make([]*dataloader.Result[[]V], len(keys))
		for i, k := range keys {
			g := groups[k]
			if g == nil {
				g = []V{}
			}
			out[i] = &dataloader.Result[[]V]{Data: g}
		}
		return out
	}
}

func failAll[V any](n int, err error) []*dataloader.Result[V] {
	out := make([]*dataloader.Result[V], n)
	for i := range out {
		out[i] = &dataloader.Result[V]{Error: err}
	}
	return out
}

func (l *Loaders) User(ctx context.Context, id string) (*model.User, error) {
	return l.users.Load(ctx, id)()
}

func (l *Loaders) Post(ctx context.Context, id string) (*model.Post, error) {
	return l.posts.Load(ctx, id)()
}

func (l *Loaders) PostsByAuthor(ctx context.Context, authorID string) ([]*model.Post, error) {
	return l.postsByAuthor.Load(ctx, authorID)()
}

func (l *Loaders) AppointmentsByUser(ctx context.Context, userID string) ([]*model.Appointment, error) {
	return l.apptsByUser.Load(ctx, userID)()
}

func (l *Loaders) AppointmentsByTutor(ctx context.Context, tutorID string) ([]*model.Appointment, error) {
	return l.apptsByTutor.Load(ctx, tutorID)()
}

func (l *Loaders) AppointmentsByPost(ctx context.Context, postID string) ([]*model.Appointment, error) {
	return l.apptsByPost.Load(ctx, postID)()
}

// LoadUsers resolves many ids in one batch. Missing ids map to nil.
func (l *Loaders) LoadUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	return loadMany(ctx, l.users, ids)
}

// LoadPostsByAuthor resolves the posts of many authors in one batch.
func (l *Loaders) LoadPostsByAuthor(ctx context.Context, authorIDs []string) (map[string][]*model.Post, error) {
	return loadMany(ctx, l.postsByAuthor, authorIDs)
}

// loadMany queues every key before waiting on any of them so they land in
// the same batch.
func loadMany[V any](ctx context.Context, ld *dataloader.Loader[string, V], keys []string) (map[string]V, error) {
	thunks := make([]dataloader.Thunk[V], len(keys))
	for i, k := range keys {
		thunks[i] = ld.Load(ctx, k)
	}
	out := make(map[string]V, len(keys))
	for i, th := range thunks {
		v, err := th()
		if err != nil {
			return nil, err
		}
		out[keys[i]] = v
	}
	return out, nil
}

type ctxKey struct{}

func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// For returns the loaders attached to ctx.
func For(ctx context.Context) (*Loaders, error) {
	l, ok := ctx.Value(ctxKey{}).(*Loaders)
	if !ok || l == nil {
		return nil, apperr.New(apperr.KindInternal, "loader.For", "no relation loaders on request context")
	}
	return l, nil
}

// Middleware attaches a fresh set of loaders to every request.
func Middleware(repo Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLoaders(r.Context(), New(repo))))
		})
	}
}
