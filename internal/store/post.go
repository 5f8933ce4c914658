package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/model"
)

const postColumns = `id, title, content, published, author_id, created_at, updated_at`

type PostFilter struct {
	AuthorID  *string
	Published *bool
}

// PostPatch has no AuthorID: a post's author never changes.
type PostPatch struct {
	Title     *string
	Content   *string
	Published *bool
}

func scanPost(row pgx.Row) (*model.Post, error) {
	p := &model.Post{}
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Published, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func collectPosts(rows pgx.Rows) ([]*model.Post, error) {
	defer rows.Close()
	var out []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePost(ctx context.Context, p *model.Post) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO posts (id, title, content, published, author_id)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING created_at, updated_at`,
		p.ID, p.Title, p.Content, p.Published, p.AuthorID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapErr("store.CreatePost", "post", err)
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(s.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("store.GetPost", "post", err)
	}
	return p, nil
}

func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]*model.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts WHERE TRUE`
	var args []any
	if f.AuthorID != nil {
		args = append(args, *f.AuthorID)
		q += fmt.Sprintf(` AND author_id = $%d`, len(args))
	}
	if f.Published != nil {
		args = append(args, *f.Published)
		q += fmt.Sprintf(` AND published = $%d`, len(args))
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("store.ListPosts", "", err)
	}
	posts, err := collectPosts(rows)
	return posts, mapErr("store.ListPosts", "", err)
}

func (s *Store) UpdatePost(ctx context.Context, id string, p PostPatch) (*model.Post, error) {
	var sets []string
	var args []any
	if p.Title != nil {
		args = append(args, *p.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if p.Content != nil {
		args = append(args, *p.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}
	if p.Published != nil {
		args = append(args, *p.Published)
		sets = append(sets, fmt.Sprintf("published = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetPost(ctx, id)
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE posts SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), postColumns)
	post, err := scanPost(s.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, mapErr("store.UpdatePost", "post", err)
	}
	return post, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) (*model.Post, error) {
	const op = "store.DeletePost"
	p, err := scanPost(s.db.QueryRow(ctx, `DELETE FROM posts WHERE id = $1 RETURNING `+postColumns, id))
	if err != nil {
		err = mapErr(op, "post", err)
		if apperr.IsKind(err, apperr.KindConstraintViolation) {
			return nil, apperr.Constraint(op, "post still has appointments", err)
		}
		return nil, err
	}
	return p, nil
}
