package handler

import (
	"context"
	"strings"

	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

type CreatePostInput struct {
	Title     string `json:"title" validate:"required,max=200"`
	Content   string `json:"content" validate:"max=10000"`
	Published *bool  `json:"published"`
	AuthorID  string `json:"authorId" validate:"required"`
}

// UpdatePostInput has no author: a post's author is fixed at creation.
type UpdatePostInput struct {
	Title     *string `json:"title" validate:"omitnil,min=1,max=200"`
	Content   *string `json:"content" validate:"omitnil,max=10000"`
	Published *bool   `json:"published"`
}

func (h *Handler) CreatePost(ctx context.Context, in CreatePostInput) (*model.Post, error) {
	const op = "handler.CreatePost"
	in.Title = strings.TrimSpace(in.Title)
	if err := h.check(op, in); err != nil {
		return nil, err
	}
	// a missing author is NotFound rather than a foreign key violation
	if _, err := h.repo.GetUser(ctx, in.AuthorID); err != nil {
		return nil, err
	}

	p := &model.Post{
		ID:       h.newID(),
		Title:    in.Title,
		Content:  in.Content,
		AuthorID: in.AuthorID,
	}
	if in.Published != nil {
		p.Published = *in.Published
	}
	if err := h.repo.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *Handler) UpdatePost(ctx context.Context, id string, in UpdatePostInput) (*model.Post, error) {
	const op = "handler.UpdatePost"
	if err := requireID(op, id); err != nil {
		return nil, err
	}
	if err := h.check(op, in); err != nil {
		return nil, err
	}
	return h.repo.UpdatePost(ctx, id, store.PostPatch{
		Title:     in.Title,
		Content:   in.Content,
		Published: in.Published,
	})
}

// DeletePost fails with ConstraintViolation while appointments reference it.
func (h *Handler) DeletePost(ctx context.Context, id string) (*model.Post, error) {
	if err := requireID("handler.DeletePost", id); err != nil {
		return nil, err
	}
	return h.repo.DeletePost(ctx, id)
}

func (h *Handler) Post(ctx context.Context, id string) (*model.Post, error) {
	if err := requireID("handler.Post", id); err != nil {
		return nil, err
	}
	return h.repo.GetPost(ctx, id)
}

func (h *Handler) Posts(ctx context.Context, f store.PostFilter) ([]*model.Post, error) {
	return h.repo.ListPosts(ctx, f)
}
