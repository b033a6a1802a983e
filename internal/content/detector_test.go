package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	docs []Document
	err  error
}

func (f *fakeSource) ListChanged(context.Context) ([]Document, error) {
	return f.docs, f.err
}

type fakeRepo struct {
	items     map[string]*domain.ContentItem
	nextID    int
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]*domain.ContentItem)}
}

func (r *fakeRepo) GetBySlug(_ context.Context, slug string) (*domain.ContentItem, error) {
	item, ok := r.items[slug]
	if !ok {
		return nil, ErrContentNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.ContentItem, error) {
	for _, item := range r.items {
		if item.ID == id {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrContentNotFound
}

func (r *fakeRepo) Create(_ context.Context, item *domain.ContentItem) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	item.ID = fmt.Sprintf("c-%d", r.nextID)
	cp := *item
	r.items[item.Slug] = &cp
	return nil
}

func (r *fakeRepo) UpdateContent(_ context.Context, item *domain.ContentItem) error {
	existing, ok := r.items[item.Slug]
	if !ok {
		return ErrContentNotFound
	}
	existing.Title = item.Title
	existing.Excerpt = item.Excerpt
	existing.PublishDate = item.PublishDate
	existing.Fingerprint = item.Fingerprint
	existing.Notified = false
	return nil
}

func (r *fakeRepo) ListUnnotified(context.Context) ([]domain.ContentItem, error) {
	var out []domain.ContentItem
	for _, item := range r.items {
		if !item.Notified {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishDate.Before(out[j].PublishDate) })
	return out, nil
}

func (r *fakeRepo) CountUnnotified(ctx context.Context) (int, error) {
	items, _ := r.ListUnnotified(ctx)
	return len(items), nil
}

func (r *fakeRepo) MarkNotified(_ context.Context, id string) error {
	for _, item := range r.items {
		if item.ID == id {
			item.Notified = true
			return nil
		}
	}
	return ErrContentNotFound
}

func testDoc(slug string, day int) Document {
	return Document{
		Slug:        slug,
		Type:        domain.ContentTypeBlog,
		Title:       "Post " + slug,
		Body:        "Body of " + slug,
		Format:      FormatMarkdown,
		PublishDate: time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC),
		Tags:        []string{"go"},
	}
}

func TestDetector_Sync_NewItems(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{docs: []Document{testDoc("b", 2), testDoc("a", 1)}}
	d := NewDetector(src, repo)

	result, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Discovered: 2, Created: 2}, result)

	items, err := d.ListUnnotified(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Slug, "oldest publish date first")
	assert.False(t, items[0].Notified)
	assert.Equal(t, "Body of a", items[0].Excerpt)
}

func TestDetector_Sync_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{docs: []Document{testDoc("a", 1)}}
	d := NewDetector(src, repo)

	_, err := d.Sync(context.Background())
	require.NoError(t, err)
	item, _ := repo.GetBySlug(context.Background(), "a")
	require.NoError(t, d.MarkNotified(context.Background(), item.ID))

	result, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Discovered: 1, Unchanged: 1}, result)

	count, err := d.CountUnnotified(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDetector_Sync_EditResetsNotified(t *testing.T) {
	repo := newFakeRepo()
	doc := testDoc("a", 1)
	src := &fakeSource{docs: []Document{doc}}
	d := NewDetector(src, repo)

	_, err := d.Sync(context.Background())
	require.NoError(t, err)
	item, _ := repo.GetBySlug(context.Background(), "a")
	originalID := item.ID
	require.NoError(t, d.MarkNotified(context.Background(), item.ID))

	doc.Body = "Rewritten body"
	src.docs = []Document{doc}

	result, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	item, err = d.GetBySlug(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, originalID, item.ID)
	assert.False(t, item.Notified)
	assert.Equal(t, Fingerprint(doc), item.Fingerprint)
}

func TestDetector_Sync_DuplicateSlugKeepsFirst(t *testing.T) {
	repo := newFakeRepo()
	blog := testDoc("same", 1)
	thought := testDoc("same", 2)
	thought.Type = domain.ContentTypeThought
	thought.Title = "Thought same"
	src := &fakeSource{docs: []Document{blog, thought}}
	d := NewDetector(src, repo)

	result, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Discovered: 2, Created: 1, Skipped: 1}, result)

	item, err := d.GetBySlug(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypeBlog, item.ContentType)
	assert.Equal(t, "Post same", item.Title)
	require.NoError(t, d.MarkNotified(context.Background(), item.ID))

	for i := 0; i < 3; i++ {
		result, err = d.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SyncResult{Discovered: 2, Unchanged: 1, Skipped: 1}, result)
	}

	item, err = d.GetBySlug(context.Background(), "same")
	require.NoError(t, err)
	assert.True(t, item.Notified, "unchanged source keeps the item notified")
	assert.Equal(t, domain.ContentTypeBlog, item.ContentType)
}

func TestDetector_Sync_SkipsInvalid(t *testing.T) {
	repo := newFakeRepo()
	noTitle := testDoc("x", 1)
	noTitle.Title = ""
	badType := testDoc("y", 1)
	badType.Type = "podcast"
	src := &fakeSource{docs: []Document{noTitle, badType, testDoc("ok", 1)}}

	result, err := NewDetector(src, repo).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Discovered)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Created)
}

func TestDetector_Sync_Errors(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		_, err := NewDetector(&fakeSource{err: errors.New("disk gone")}, newFakeRepo()).Sync(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list content")
	})

	t.Run("store error", func(t *testing.T) {
		repo := newFakeRepo()
		repo.createErr = errors.New("db down")
		_, err := NewDetector(&fakeSource{docs: []Document{testDoc("a", 1)}}, repo).Sync(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create content a")
	})
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Document)
		wantErr string
	}{
		{name: "valid", mutate: func(*Document) {}},
		{name: "missing slug", mutate: func(d *Document) { d.Slug = "" }, wantErr: "slug is required"},
		{name: "bad type", mutate: func(d *Document) { d.Type = "video" }, wantErr: "unknown type"},
		{name: "missing title", mutate: func(d *Document) { d.Title = "" }, wantErr: "title is required"},
		{name: "missing date", mutate: func(d *Document) { d.PublishDate = time.Time{} }, wantErr: "publish date is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDoc("a", 1)
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
