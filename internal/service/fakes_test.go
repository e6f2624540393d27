package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/events"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

// =========================================================================
// FAKE PHOTO REPOSITORY
// =========================================================================
//
// Each *Err field makes the matching method fail. updateErrs is a queue:
// the Nth UpdateFields call returns updateErrs[N] (nil = succeed), which is
// how the rename rollback tests fail the first write but not the second.

type fakePhotoRepo struct {
	mu     sync.Mutex
	photos map[string]*model.Photo
	nextID int

	insertErr  error
	findErr    error
	deleteErr  error
	toggleErr  error
	updateErrs []error
	updates    int
}

func newFakePhotoRepo() *fakePhotoRepo {
	return &fakePhotoRepo{photos: make(map[string]*model.Photo)}
}

func (r *fakePhotoRepo) Insert(_ context.Context, p *model.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.nextID++
	p.ID = fmt.Sprintf("photo-%d", r.nextID)
	p.UploadedAt = time.Now().UTC()
	cp := *p
	r.photos[p.ID] = &cp
	return nil
}

func (r *fakePhotoRepo) FindByID(_ context.Context, id string) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.photos[id]
	if !ok {
		return nil, apperror.NotFound("photo", id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakePhotoRepo) FindByBlobID(_ context.Context, blobID string) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, p := range r.photos {
		if p.BlobID == blobID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("photo", blobID)
}

func (r *fakePhotoRepo) FindByFilter(_ context.Context, f repository.PhotoFilter) ([]model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []model.Photo
	for _, p := range r.photos {
		if f.OwnerID != "" && p.OwnerID != f.OwnerID {
			continue
		}
		if f.Favorite != nil && p.IsFavorite != *f.Favorite {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePhotoRepo) UpdateFields(_ context.Context, id string, u repository.PhotoUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.updates
	r.updates++
	if n < len(r.updateErrs) && r.updateErrs[n] != nil {
		return r.updateErrs[n]
	}
	p, ok := r.photos[id]
	if !ok {
		return apperror.NotFound("photo", id)
	}
	if u.Filename != nil {
		p.Filename = *u.Filename
	}
	if u.Tags != nil {
		p.Tags = slices.Clone(*u.Tags)
	}
	if u.Description != nil {
		d := *u.Description
		p.Description = &d
	}
	return nil
}

func (r *fakePhotoRepo) ToggleFavorite(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.toggleErr != nil {
		return false, r.toggleErr
	}
	p, ok := r.photos[id]
	if !ok {
		return false, apperror.NotFound("photo", id)
	}
	p.IsFavorite = !p.IsFavorite
	return p.IsFavorite, nil
}

func (r *fakePhotoRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.photos[id]; !ok {
		return apperror.NotFound("photo", id)
	}
	delete(r.photos, id)
	return nil
}

func (r *fakePhotoRepo) ReferencesBlob(_ context.Context, blobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.photos {
		if p.BlobID == blobID {
			return true, nil
		}
	}
	return false, nil
}

// seed stores p directly, bypassing Insert's error injection.
func (r *fakePhotoRepo) seed(p model.Photo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos[p.ID] = &p
}

func (r *fakePhotoRepo) get(id string) (model.Photo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return model.Photo{}, false
	}
	return *p, true
}

func (r *fakePhotoRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.photos)
}

// =========================================================================
// FAKE BLOB STORE
// =========================================================================

type fakeBlob struct {
	info blobstore.Info
	data []byte
}

type fakeBlobStore struct {
	mu     sync.Mutex
	blobs  map[string]*fakeBlob
	nextID int

	putErr    error
	getErr    error
	deleteErr error
	renameErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string]*fakeBlob)}
}

func (b *fakeBlobStore) Put(_ context.Context, name, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	b.nextID++
	id := fmt.Sprintf("blob-%d", b.nextID)
	b.blobs[id] = &fakeBlob{
		info: blobstore.Info{ID: id, Name: name, ContentType: contentType, Size: int64(len(data)), UploadedAt: time.Now()},
		data: bytes.Clone(data),
	}
	return id, nil
}

func (b *fakeBlobStore) Get(_ context.Context, id string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	blob, ok := b.blobs[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.blobs[id]; !ok {
		return blobstore.ErrNotFound
	}
	delete(b.blobs, id)
	return nil
}

func (b *fakeBlobStore) Rename(_ context.Context, id, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.renameErr != nil {
		return b.renameErr
	}
	blob, ok := b.blobs[id]
	if !ok {
		return blobstore.ErrNotFound
	}
	blob.info.Name = newName
	return nil
}

func (b *fakeBlobStore) Stat(_ context.Context, id string) (*blobstore.Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	info := blob.info
	return &info, nil
}

func (b *fakeBlobStore) List(_ context.Context, fn func(blobstore.Info) error) error {
	b.mu.Lock()
	infos := make([]blobstore.Info, 0, len(b.blobs))
	for _, blob := range b.blobs {
		infos = append(infos, blob.info)
	}
	b.mu.Unlock()
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBlobStore) seed(id, name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[id] = &fakeBlob{info: blobstore.Info{ID: id, Name: name, Size: int64(len(data))}, data: data}
}

func (b *fakeBlobStore) name(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[id]
	if !ok {
		return "", false
	}
	return blob.info.Name, true
}

func (b *fakeBlobStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// =========================================================================
// FAKE EVENT PUBLISHER
// =========================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// =========================================================================
// FIXTURE
// =========================================================================

var errStoreDown = errors.New("store unavailable")

const testSecret = "service-test-secret-0123456789"

type photoFixture struct {
	svc     *PhotoService
	photos  *fakePhotoRepo
	blobs   *fakeBlobStore
	tokens  *auth.TokenService
	events  *recordingPublisher
	metrics *metrics.Metrics
}

func newPhotoFixture(t *testing.T) *photoFixture {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	f := &photoFixture{
		photos:  newFakePhotoRepo(),
		blobs:   newFakeBlobStore(),
		tokens:  tokens,
		events:  &recordingPublisher{},
		metrics: metrics.New(),
	}
	f.svc = NewPhotoService(f.photos, f.blobs, tokens, slog.New(slog.DiscardHandler),
		WithEvents(f.events),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *photoFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.tokens.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

// seedPhoto stores a consistent photo (record + blob) owned by ownerID.
func (f *photoFixture) seedPhoto(id, ownerID, filename string) model.Photo {
	blobID := "blob-of-" + id
	f.blobs.seed(blobID, filename, []byte("bytes of "+id))
	p := model.Photo{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		BlobID:      blobID,
		ContentType: "image/jpeg",
		Tags:        []string{},
	}
	f.photos.seed(p)
	return p
}

// scrape returns the Prometheus text exposition of f.metrics.
func (f *photoFixture) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
