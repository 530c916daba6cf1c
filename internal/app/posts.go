package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"inkwell/api/internal/audit"
	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

type CreatePostInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	IsAnonymous bool   `json:"isAnonymous"`
}

func (s *Service) CreatePost(ctx context.Context, session Session, in CreatePostInput) (store.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return store.Post{}, invalidInput("title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return store.Post{}, invalidInput("content is required")
	}

	actor, account, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Post{}, err
	}
	if d := perm.CanCreatePost(actor); !d.Allowed {
		return store.Post{}, permissionDenied(d)
	}

	author := account.Name
	if author == "" {
		author = account.Email
	}
	if in.IsAnonymous {
		author = "Anonymous"
	}

	now := s.now().UTC()
	post := store.Post{
		ID:           util.NewID("post"),
		Title:        in.Title,
		Content:      in.Content,
		Author:       author,
		ActualAuthor: account.Email,
		IsAnonymous:  in.IsAnonymous,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return store.Post{}, s.storeErr(err, "insert post")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionCreatePost, map[string]any{
		"postId":    post.ID,
		"postTitle": post.Title,
		"anonymous": post.IsAnonymous,
	})
	return post, nil
}

type EditPostInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Service) EditPost(ctx context.Context, session Session, postID string, in EditPostInput) (store.Post, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Post{}, err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Post{}, notFound("post", postID)
		}
		return store.Post{}, s.storeErr(err, "load post")
	}
	if d := perm.CanMutatePost(actor, perm.PostOwnership{ActualAuthor: post.ActualAuthor}, perm.MutationEdit); !d.Allowed {
		return store.Post{}, permissionDenied(d)
	}

	newTitle, newContent := post.Title, post.Content
	if in.Title != nil {
		newTitle = strings.TrimSpace(*in.Title)
		if newTitle == "" {
			return store.Post{}, invalidInput("title is required")
		}
	}
	if in.Content != nil {
		newContent = *in.Content
		if strings.TrimSpace(newContent) == "" {
			return store.Post{}, invalidInput("content is required")
		}
	}

	now := s.now().UTC()
	if err := s.store.UpdatePost(ctx, post.ID, newTitle, newContent, now); err != nil {
		return store.Post{}, s.storeErr(err, "update post")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionEditPost, map[string]any{
		"postId": post.ID,
		"before": map[string]any{"title": truncate(post.Title), "content": truncate(post.Content)},
		"after":  map[string]any{"title": truncate(newTitle), "content": truncate(newContent)},
	})

	post.Title = newTitle
	post.Content = newContent
	post.UpdatedAt = now
	return redactPost(post, &session), nil
}

// DeletePost removes a live post. The soft path first copies the post into
// the deleted set and only then removes the live record, so a failure
// between the two phases leaves a duplicate, never a lost post.
func (s *Service) DeletePost(ctx context.Context, session Session, postID string, soft bool) error {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("post", postID)
		}
		return s.storeErr(err, "load post")
	}
	if d := perm.CanMutatePost(actor, perm.PostOwnership{ActualAuthor: post.ActualAuthor}, perm.MutationDelete); !d.Allowed {
		return permissionDenied(d)
	}

	if soft {
		entry := store.DeletedPost{
			Post:           post,
			DeletedBy:      actor.ID,
			DeletedByEmail: actor.Email,
			DeletedAt:      s.now().UTC(),
		}
		if err := s.store.InsertDeletedPost(ctx, entry); err != nil {
			return s.storeErr(err, "copy post to deleted set")
		}
	}
	if err := s.store.DeletePost(ctx, post.ID); err != nil {
		return s.storeErr(err, "delete post")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionDeletePost, map[string]any{
		"postId":     post.ID,
		"postTitle":  post.Title,
		"postAuthor": post.Author,
		"softDelete": soft,
	})
	return nil
}

// RestorePost moves a post from the deleted set back to the live set,
// refusing to overwrite an unrelated live post with the same id.
func (s *Service) RestorePost(ctx context.Context, session Session, postID string) (store.Post, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Post{}, err
	}
	if d := perm.CanRestoreContent(actor); !d.Allowed {
		return store.Post{}, permissionDenied(d)
	}

	entry, err := s.store.GetDeletedPost(ctx, postID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Post{}, notFound("deleted post", postID)
		}
		return store.Post{}, s.storeErr(err, "load deleted post")
	}
	exists, err := s.store.PostExists(ctx, postID)
	if err != nil {
		return store.Post{}, s.storeErr(err, "check live post")
	}
	if exists {
		return store.Post{}, idConflict("post", postID)
	}

	if err := s.store.InsertPost(ctx, entry.Post); err != nil {
		return store.Post{}, s.storeErr(err, "restore post")
	}
	if err := s.store.RemoveDeletedPost(ctx, postID); err != nil {
		return store.Post{}, s.storeErr(err, "remove restored post from deleted set")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionRestorePost, map[string]any{
		"postId":    entry.ID,
		"postTitle": entry.Title,
	})
	return entry.Post, nil
}

// PurgePost permanently removes a post from the deleted set.
func (s *Service) PurgePost(ctx context.Context, session Session, postID string) error {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	if d := perm.CanPurgeContent(actor); !d.Allowed {
		return permissionDenied(d)
	}
	entry, err := s.store.GetDeletedPost(ctx, postID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("deleted post", postID)
		}
		return s.storeErr(err, "load deleted post")
	}
	if err := s.store.RemoveDeletedPost(ctx, postID); err != nil {
		return s.storeErr(err, "purge post")
	}
	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionDeletePost, map[string]any{
		"postId":    entry.ID,
		"postTitle": entry.Title,
		"purged":    true,
	})
	return nil
}

// redactPost blanks the owning identity for callers who are neither the
// post's owner nor a super admin. The display Author field is all anyone
// else may see.
func redactPost(post store.Post, viewer *Session) store.Post {
	if viewer != nil && (viewer.IsSuperAdmin || viewer.Email == post.ActualAuthor) {
		return post
	}
	post.ActualAuthor = ""
	return post
}

func redactPosts(posts []store.Post, viewer *Session) []store.Post {
	out := make([]store.Post, len(posts))
	for i, post := range posts {
		out[i] = redactPost(post, viewer)
	}
	return out
}

func (s *Service) GetPost(ctx context.Context, viewer *Session, postID string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Post{}, notFound("post", postID)
		}
		return store.Post{}, s.storeErr(err, "load post")
	}
	return redactPost(post, viewer), nil
}

func (s *Service) ListPosts(ctx context.Context, viewer *Session) ([]store.Post, error) {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, s.storeErr(err, "list posts")
	}
	return redactPosts(posts, viewer), nil
}

func (s *Service) ListMyPosts(ctx context.Context, session Session) ([]store.Post, error) {
	posts, err := s.store.ListPostsByAuthor(ctx, session.Email)
	if err != nil {
		return nil, s.storeErr(err, "list posts by author")
	}
	return posts, nil
}

func (s *Service) ListDeletedPosts(ctx context.Context, session Session) ([]store.DeletedPost, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanViewDeletedContent(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	entries, err := s.store.ListDeletedPosts(ctx)
	if err != nil {
		return nil, s.storeErr(err, "list deleted posts")
	}
	return entries, nil
}

const auditSnippetLen = 100

func truncate(s string) string {
	if len(s) <= auditSnippetLen {
		return s
	}
	// Back off to a rune boundary so the snippet stays valid UTF-8.
	cut := auditSnippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
