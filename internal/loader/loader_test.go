package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring-api/internal/model"
)

type fakeRepo struct {
	mu        sync.Mutex
	userCalls [][]string
	postCalls int32
	users     map[string]*model.User
	posts     []*model.Post
	failUsers error
}

func (f *fakeRepo) UsersByIDs(_ context.Context, ids []string) ([]*model.User, error) {
	f.mu.Lock()
	f.userCalls = append(f.userCalls, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.failUsers != nil {
		return nil, f.failUsers
	}
	var out []*model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) PostsByIDs(context.Context, []string) ([]*model.Post, error) { return nil, nil }

func (f *fakeRepo) PostsByAuthorIDs(_ context.Context, ids []string) ([]*model.Post, error) {
	atomic.AddInt32(&f.postCalls, 1)
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*model.Post
	for _, p := range f.posts {
		if want[p.AuthorID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) AppointmentsByUserIDs(context.Context, []string) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeRepo) AppointmentsByTutorIDs(context.Context, []string) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeRepo) AppointmentsByPostIDs(context.Context, []string) ([]*model.Appointment, error) {
	return nil, nil
}

func newFake() *fakeRepo {
	return &fakeRepo{
		users: map[string]*model.User{
			"t1": {ID: "t1", FirstName: "Tess", Role: model.RoleTutor},
			"s1": {ID: "s1", FirstName: "Sam", Role: model.RoleStudent},
		},
		posts: []*model.Post{
			{ID: "p1", AuthorID: "t1"},
			{ID: "p2", AuthorID: "t1"},
		},
	}
}

func TestUser(t *testing.T) {
	t.Run("Should issue one lookup for many parents sharing an author", func(t *testing.T) {
		repo := newFake()
		l := New(repo)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u, err := l.User(ctx, "t1")
				assert.NoError(t, err)
				assert.Equal(t, "Tess", u.FirstName)
			}()
		}
		wg.Wait()
		assert.Len(t, repo.userCalls, 1)
		assert.Equal(t, []string{"t1"}, repo.userCalls[0])
	})
	t.Run("Should resolve a missing id to nil without error", func(t *testing.T) {
		l := New(newFake())
		u, err := l.User(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
	t.Run("Should hand the batch error to every key", func(t *testing.T) {
		repo := newFake()
		repo.failUsers = errors.New("boom")
		l := New(repo)
		_, err := l.LoadUsers(context.Background(), []string{"t1", "s1"})
		assert.EqualError(t, err, "boom")
	})
}

func TestLoadUsers(t *testing.T) {
	repo := newFake()
	l := New(repo)
	got, err := l.LoadUsers(context.Background(), []string{"t1", "s1", "ghost"})
	require.NoError(t, err)
	assert.Len(t, repo.userCalls, 1)
	assert.ElementsMatch(t, []string{"t1", "s1", "ghost"}, repo.userCalls[0])
	assert.Equal(t, "Sam", got["s1"].FirstName)
	assert.Nil(t, got["ghost"])
}

func TestLoadPostsByAuthor(t *testing.T) {
	repo := newFake()
	l := New(repo)
	got, err := l.LoadPostsByAuthor(context.Background(), []string{"t1", "s1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.postCalls))
	assert.Len(t, got["t1"], 2)
	assert.NotNil(t, got["s1"])
	assert.Empty(t, got["s1"])
}

func TestMiddleware(t *testing.T) {
	repo := newFake()
	var seen []*Loaders
	h := Middleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l, err := For(r.Context())
		require.NoError(t, err)
		seen = append(seen, l)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))
	}
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])

	_, err := For(context.Background())
	assert.Error(t, err)
}
