package services

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumehq/plume/counters"
	"github.com/plumehq/plume/images"
	"github.com/plumehq/plume/internal/cache"
	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/testutil"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/posts/repository"
	"github.com/plumehq/plume/votes/scoring"
)

// stubPostRepo records every write it receives. Behaviors are injected per
// test through its fields.
type stubPostRepo struct {
	mu sync.Mutex

	taken map[models.PostId]bool
	slot  models.PostId

	drafts  []*models.NewDraft
	media   []*repository.MediaUpdate
	patches []*models.PostPatch

	filename    *string
	filenameErr error

	state    *repository.OwnPostState
	stateErr error

	fieldsErr error

	privacySet []models.Privacy
	seeds      []*repository.ScoreSeed

	post *models.Post
}

func (r *stubPostRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *stubPostRepo) Exists(ctx context.Context, id models.PostId) (bool, error) {
	return r.taken[id], nil
}

func (r *stubPostRepo) CreateUnpublished(ctx context.Context, userID int64, id models.PostId) (models.PostId, error) {
	if r.slot != 0 {
		return r.slot, nil
	}
	r.slot = id
	return id, nil
}

func (r *stubPostRepo) CreateDraft(ctx context.Context, draft *models.NewDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts = append(r.drafts, draft)
	return nil
}

func (r *stubPostRepo) OwnFilename(ctx context.Context, userID int64, id models.PostId) (*string, error) {
	if r.filenameErr != nil {
		return nil, r.filenameErr
	}
	return r.filename, nil
}

func (r *stubPostRepo) OwnPostState(ctx context.Context, userID int64, id models.PostId) (*repository.OwnPostState, error) {
	if r.stateErr != nil {
		return nil, r.stateErr
	}
	return r.state, nil
}

func (r *stubPostRepo) UpdateMedia(ctx context.Context, userID int64, id models.PostId, media *repository.MediaUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = append(r.media, media)
	return nil
}

func (r *stubPostRepo) UpdateFields(ctx context.Context, userID int64, id models.PostId, patch *models.PostPatch) error {
	if r.fieldsErr != nil {
		return r.fieldsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
	return nil
}

func (r *stubPostRepo) SetPrivacy(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.privacySet = append(r.privacySet, privacy)
	return nil
}

func (r *stubPostRepo) PublishFirst(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy, seed *repository.ScoreSeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.privacySet = append(r.privacySet, privacy)
	r.seeds = append(r.seeds, seed)
	return nil
}

func (r *stubPostRepo) FindByID(ctx context.Context, id models.PostId) (*models.Post, error) {
	if r.post == nil {
		return nil, repository.ErrPostNotFound
	}
	return r.post, nil
}

type stubUserRepo struct {
	previous *models.PostId
	set      []repository.IconKind
	setTo    []models.PostId
	err      error
}

func (r *stubUserRepo) SetRendition(ctx context.Context, userID int64, kind repository.IconKind, id models.PostId) (*models.PostId, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.set = append(r.set, kind)
	r.setTo = append(r.setTo, id)
	return r.previous, nil
}

type stubTags struct {
	groups types.TagGroups
	err    error
}

func (s *stubTags) PostTags(ctx context.Context, postID string) (types.TagGroups, error) {
	return s.groups, s.err
}

type stubLookup struct {
	user *types.User
	err  error
}

func (s *stubLookup) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	return s.user, s.err
}

type stubCDN struct {
	data []byte
	err  error
}

func (s *stubCDN) Fetch(ctx context.Context, key string) ([]byte, error) {
	return s.data, s.err
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

// zeroSource seeds every counter from zero so deltas are observable as
// absolute values.
type zeroSource struct{}

func (zeroSource) Count(ctx context.Context, key counters.Key) (int64, error) {
	return 0, nil
}

type fixture struct {
	repo   *stubPostRepo
	users  *stubUserRepo
	blobs  *fakeBlobStore
	tags   *stubTags
	lookup *stubLookup
	cdn    *stubCDN
	cache  cache.Cache
	counts *counters.Service
	pool   *counters.Pool
	svc    PostService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		repo:   &stubPostRepo{taken: make(map[models.PostId]bool)},
		users:  &stubUserRepo{},
		blobs:  newFakeBlobStore(),
		tags:   &stubTags{groups: types.TagGroups{}},
		lookup: &stubLookup{user: &types.User{UserID: 7, Handle: "Alice"}},
		cdn:    &stubCDN{},
	}
	fx.cache = cache.NewMemoryCache(cache.DefaultCacheConfig())
	fx.counts = counters.NewService(fx.cache, zeroSource{})
	fx.pool = counters.NewPool(fx.counts, 1, 32)

	cfg := testutil.TestImagesConfig(t.TempDir())
	pipeline, err := images.NewPipeline(cfg, fx.blobs)
	require.NoError(t, err)

	fx.svc = NewPostService(fx.repo, fx.users, fx.blobs, pipeline, fx.tags, fx.lookup, fx.cdn, fx.cache, fx.pool, cfg)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = fx.pool.Shutdown(ctx)
	})
	return fx
}

// drain waits for every enqueued counter delta to apply.
func (fx *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fx.pool.Shutdown(ctx))
}

func (fx *fixture) count(t *testing.T, key counters.Key) int64 {
	t.Helper()
	value, err := fx.counts.Count(context.Background(), key)
	require.NoError(t, err)
	return value
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *httperr.Error
	require.ErrorAs(t, err, &he)
	return he.Status
}

func strptr(s string) *string { return &s }

var testUser = &types.UserContext{UserID: 7, Handle: "alice", DisplayName: "Alice"}

func TestCreatePost_EmptyYieldsUnpublishedSlot(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.svc.CreatePost(context.Background(), testUser, &models.CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, fx.repo.slot, id)
	assert.Empty(t, fx.repo.drafts)

	// A second empty create returns the same slot.
	again, err := fx.svc.CreatePost(context.Background(), testUser, &models.CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestCreatePost_DraftKeepsFields(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.CreatePost(context.Background(), testUser, &models.CreateRequest{
		Title:  strptr("sunset"),
		Rating: strptr("mature"),
	})
	require.NoError(t, err)

	require.Len(t, fx.repo.drafts, 1)
	draft := fx.repo.drafts[0]
	assert.Equal(t, int64(7), draft.Uploader)
	assert.Equal(t, "sunset", *draft.Title)
	assert.Equal(t, models.RatingMature, *draft.Rating)
	assert.Empty(t, fx.repo.seeds, "draft without privacy must not publish")
}

func TestCreatePost_ValidationBounds(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []*models.CreateRequest{
		{Title: strptr(strings.Repeat("a", models.MaxTitleLength+1))},
		{Title: strptr(strings.Repeat("é", models.MaxTitleLength+1))},
		{Description: strptr(strings.Repeat("a", models.MaxDescriptionLength+1))},
		{Rating: strptr("wholesome")},
		{Privacy: strptr("friends-only")},
		{Privacy: strptr("unpublished")},
		{ReplyTo: strptr("not-an-id")},
	}
	for _, req := range cases {
		_, err := fx.svc.CreatePost(ctx, testUser, req)
		assert.Equal(t, 400, httpStatus(t, err))
	}
	assert.Empty(t, fx.repo.drafts)
}

func TestCreatePost_BoundsCountCharactersNotBytes(t *testing.T) {
	fx := newFixture(t)

	// 100 two-byte characters: 200 bytes, but exactly at the character bound.
	title := strings.Repeat("é", models.MaxTitleLength)
	_, err := fx.svc.CreatePost(context.Background(), testUser, &models.CreateRequest{
		Title: strptr(title),
	})
	require.NoError(t, err)
	require.Len(t, fx.repo.drafts, 1)
	assert.Equal(t, title, *fx.repo.drafts[0].Title)
}

func TestUpdatePost_BoundsCountCharactersNotBytes(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.UpdatePost(context.Background(), testUser, &models.UpdateRequest{
		PostID: "AAAAAAAB",
		Title:  strptr(strings.Repeat("é", models.MaxTitleLength)),
	})
	require.NoError(t, err)
	require.Len(t, fx.repo.patches, 1)

	err = fx.svc.UpdatePost(context.Background(), testUser, &models.UpdateRequest{
		PostID:      "AAAAAAAB",
		Description: strptr(strings.Repeat("é", models.MaxDescriptionLength+1)),
	})
	assert.Equal(t, 400, httpStatus(t, err))
}

func TestCreatePost_WithPrivacyPublishesAndCounts(t *testing.T) {
	fx := newFixture(t)
	fx.tags.groups = types.TagGroups{"subject": {"landscape", "mountain"}}

	before := time.Now().Unix()
	_, err := fx.svc.CreatePost(context.Background(), testUser, &models.CreateRequest{
		Title:   strptr("sunset"),
		Rating:  strptr("mature"),
		Privacy: strptr("public"),
	})
	require.NoError(t, err)

	require.Len(t, fx.repo.seeds, 1)
	seed := fx.repo.seeds[0]
	assert.Equal(t, scoring.Confidence(1, 1), seed.Best)
	assert.Equal(t, scoring.Controversial(1, 0), seed.Controversial)
	assert.GreaterOrEqual(t, seed.Hot, scoring.Hot(1, 0, before))
	assert.Equal(t, []models.Privacy{models.PrivacyPublic}, fx.repo.privacySet)

	fx.drain(t)
	assert.Equal(t, int64(1), fx.count(t, counters.GlobalKey))
	assert.Equal(t, int64(1), fx.count(t, counters.UserKey(7)))
	assert.Equal(t, int64(1), fx.count(t, counters.RatingKey(models.RatingMature)))
	assert.Equal(t, int64(1), fx.count(t, counters.TagKey("landscape")))
	assert.Equal(t, int64(1), fx.count(t, counters.TagKey("mountain")))
}

func TestUpdatePost_NoParams(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.UpdatePost(context.Background(), testUser, &models.UpdateRequest{PostID: "AAAAAAAB"})
	assert.Equal(t, 400, httpStatus(t, err))
}

func TestUpdatePost_PatchesFieldsAndCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := models.PostId(1)

	cached, _ := json.Marshal(&models.Post{PostID: id, Uploader: 7, Title: strptr("old"), Rating: models.RatingGeneral})
	require.NoError(t, fx.cache.Set(ctx, postCacheKey(id), cached, 0))

	err := fx.svc.UpdatePost(ctx, testUser, &models.UpdateRequest{
		PostID: "AAAAAAAB",
		Title:  strptr("new title"),
		Rating: strptr("explicit"),
	})
	require.NoError(t, err)

	require.Len(t, fx.repo.patches, 1)
	assert.Equal(t, "new title", *fx.repo.patches[0].Title)
	assert.Equal(t, models.RatingExplicit, *fx.repo.patches[0].Rating)

	raw, err := fx.cache.Get(ctx, postCacheKey(id))
	require.NoError(t, err)
	var post models.Post
	require.NoError(t, json.Unmarshal(raw, &post))
	assert.Equal(t, "new title", *post.Title)
	assert.Equal(t, models.RatingExplicit, post.Rating)
}

func TestUpdatePost_ClearsTitleToNull(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := models.PostId(1)

	cached, _ := json.Marshal(&models.Post{PostID: id, Uploader: 7, Title: strptr("old")})
	require.NoError(t, fx.cache.Set(ctx, postCacheKey(id), cached, 0))

	err := fx.svc.UpdatePost(ctx, testUser, &models.UpdateRequest{
		PostID: "AAAAAAAB",
		Title:  strptr(""),
	})
	require.NoError(t, err)

	raw, err := fx.cache.Get(ctx, postCacheKey(id))
	require.NoError(t, err)
	var post models.Post
	require.NoError(t, json.Unmarshal(raw, &post))
	assert.Nil(t, post.Title)
}

func TestUpdatePost_ForeignPost(t *testing.T) {
	fx := newFixture(t)
	fx.repo.fieldsErr = repository.ErrNotOwner

	err := fx.svc.UpdatePost(context.Background(), testUser, &models.UpdateRequest{
		PostID: "AAAAAAAB",
		Title:  strptr("hijack"),
	})
	assert.Equal(t, 403, httpStatus(t, err))
}

func TestUpdatePrivacy_SamePrivacy(t *testing.T) {
	fx := newFixture(t)
	fx.repo.state = &repository.OwnPostState{Privacy: models.PrivacyPublic, Rating: models.RatingGeneral}

	err := fx.svc.UpdatePrivacy(context.Background(), testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "public",
	})
	assert.Equal(t, 400, httpStatus(t, err))
	assert.Empty(t, fx.repo.privacySet)
}

func TestUpdatePrivacy_MissingPost(t *testing.T) {
	fx := newFixture(t)
	fx.repo.stateErr = repository.ErrPostNotFound

	err := fx.svc.UpdatePrivacy(context.Background(), testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "public",
	})
	assert.Equal(t, 404, httpStatus(t, err))
}

func TestUpdatePrivacy_DraftRequiresUnpublished(t *testing.T) {
	fx := newFixture(t)
	fx.repo.state = &repository.OwnPostState{Privacy: models.PrivacyPublic, Rating: models.RatingGeneral}

	err := fx.svc.UpdatePrivacy(context.Background(), testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "draft",
	})
	assert.Equal(t, 400, httpStatus(t, err))
}

func TestUpdatePrivacy_PublicToPrivateDecrements(t *testing.T) {
	fx := newFixture(t)
	fx.repo.state = &repository.OwnPostState{Privacy: models.PrivacyPublic, Rating: models.RatingGeneral}
	fx.tags.groups = types.TagGroups{"subject": {"landscape"}}
	ctx := context.Background()
	id := models.PostId(1)

	cached, _ := json.Marshal(&models.Post{PostID: id, Uploader: 7})
	require.NoError(t, fx.cache.Set(ctx, postCacheKey(id), cached, 0))

	err := fx.svc.UpdatePrivacy(ctx, testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "private",
	})
	require.NoError(t, err)

	// Already published, so the plain privacy write runs, not a publish.
	assert.Equal(t, []models.Privacy{models.PrivacyPrivate}, fx.repo.privacySet)
	assert.Empty(t, fx.repo.seeds)

	// The cached projection is stale after a transition and must be gone.
	_, err = fx.cache.Get(ctx, postCacheKey(id))
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)

	fx.drain(t)
	assert.Equal(t, int64(-1), fx.count(t, counters.GlobalKey))
	assert.Equal(t, int64(-1), fx.count(t, counters.UserKey(7)))
	assert.Equal(t, int64(-1), fx.count(t, counters.RatingKey(models.RatingGeneral)))
	assert.Equal(t, int64(-1), fx.count(t, counters.TagKey("landscape")))
}

func TestUpdatePrivacy_UnlistedToPrivateSkipsCounters(t *testing.T) {
	fx := newFixture(t)
	fx.repo.state = &repository.OwnPostState{Privacy: models.PrivacyUnlisted, Rating: models.RatingGeneral}

	err := fx.svc.UpdatePrivacy(context.Background(), testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "private",
	})
	require.NoError(t, err)

	fx.drain(t)
	assert.Equal(t, int64(0), fx.count(t, counters.GlobalKey))
}

func TestUpdatePrivacy_TagServiceFailureAborts(t *testing.T) {
	fx := newFixture(t)
	fx.repo.state = &repository.OwnPostState{Privacy: models.PrivacyDraft, Rating: models.RatingGeneral}
	fx.tags.err = httperr.BadGateway("tag service unavailable")

	err := fx.svc.UpdatePrivacy(context.Background(), testUser, &models.PrivacyRequest{
		PostID: "AAAAAAAB", Privacy: "public",
	})
	assert.Equal(t, 502, httpStatus(t, err))

	fx.drain(t)
	assert.Equal(t, int64(0), fx.count(t, counters.GlobalKey))
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadImage_ReplacesBlobAndPatchesCache(t *testing.T) {
	fx := newFixture(t)
	fx.repo.filename = strptr("old.png")
	ctx := context.Background()
	id := models.PostId(1)

	cached, _ := json.Marshal(&models.Post{PostID: id, Uploader: 7})
	require.NoError(t, fx.cache.Set(ctx, postCacheKey(id), cached, 0))

	resp, err := fx.svc.UploadImage(ctx, testUser, &UploadParams{
		PostID:   "AAAAAAAB",
		Filename: "photo.png",
		Data:     testPNG(t, 40, 30),
	})
	require.NoError(t, err)

	require.Len(t, fx.repo.media, 1)
	media := fx.repo.media[0]
	assert.Equal(t, 40, media.Width)
	assert.Equal(t, 30, media.Height)
	assert.True(t, strings.HasSuffix(media.Filename, "_photo.png"))

	assert.Equal(t, id, resp.PostID)
	assert.Equal(t, "AAAAAAAB/"+media.Filename, resp.URL)
	assert.Contains(t, resp.Thumbnails, "jpeg")
	assert.Nil(t, resp.Emoji)

	// The replaced original is removed once the new renditions are up.
	assert.Contains(t, fx.blobs.deleted, "AAAAAAAB/old.png")
	assert.Contains(t, fx.blobs.objects, resp.URL)

	raw, err := fx.cache.Get(ctx, postCacheKey(id))
	require.NoError(t, err)
	var post models.Post
	require.NoError(t, json.Unmarshal(raw, &post))
	require.NotNil(t, post.Filename)
	assert.Equal(t, media.Filename, *post.Filename)
	require.NotNil(t, post.Size)
	assert.Equal(t, 40, post.Size.Width)
}

func TestUploadImage_ForeignPostUploadsNothing(t *testing.T) {
	fx := newFixture(t)
	fx.repo.filenameErr = repository.ErrNotOwner

	_, err := fx.svc.UploadImage(context.Background(), testUser, &UploadParams{
		PostID:   "AAAAAAAB",
		Filename: "photo.png",
		Data:     testPNG(t, 40, 30),
	})
	assert.Equal(t, 403, httpStatus(t, err))
	assert.Empty(t, fx.blobs.objects)
}

func TestUploadImage_BadPostID(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.UploadImage(context.Background(), testUser, &UploadParams{
		PostID:   "nope",
		Filename: "photo.png",
		Data:     testPNG(t, 4, 4),
	})
	assert.Equal(t, 400, httpStatus(t, err))
}

func TestSetIcon_CropGeometry(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.SetIcon(context.Background(), testUser, &models.IconRequest{
		PostID:      "AAAAAAAB",
		Coordinates: models.CropCoordinates{Width: 100, Height: 80},
	})
	assert.Equal(t, 400, httpStatus(t, err))

	err = fx.svc.SetBanner(context.Background(), testUser, &models.IconRequest{
		PostID:      "AAAAAAAB",
		Coordinates: models.CropCoordinates{Width: 300, Height: 300},
	})
	assert.Equal(t, 400, httpStatus(t, err))

	err = fx.svc.SetIcon(context.Background(), testUser, &models.IconRequest{
		PostID:      "AAAAAAAB",
		Coordinates: models.CropCoordinates{Width: 0, Height: 0},
	})
	assert.Equal(t, 400, httpStatus(t, err))
}

func TestSetIcon_WritesRenditionPair(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := models.PostId(1)

	fx.repo.post = &models.Post{PostID: id, Uploader: 7, Filename: strptr("photo.png")}
	fx.cdn.data = testPNG(t, 200, 200)
	prev := models.PostId(2)
	fx.users.previous = &prev

	err := fx.svc.SetIcon(ctx, testUser, &models.IconRequest{
		PostID:      "AAAAAAAB",
		Coordinates: models.CropCoordinates{Left: 10, Top: 10, Width: 120, Height: 120},
	})
	require.NoError(t, err)

	// Handle is lowercased in blob keys.
	assert.Contains(t, fx.blobs.objects, "AAAAAAAB/icons/alice.webp")
	assert.Contains(t, fx.blobs.objects, "AAAAAAAB/icons/alice.jpg")
	assert.Equal(t, []repository.IconKind{repository.KindIcon}, fx.users.set)

	// The renditions under the previously pointed-at post are removed.
	assert.Contains(t, fx.blobs.deleted, prev.String()+"/icons/alice.webp")
	assert.Contains(t, fx.blobs.deleted, prev.String()+"/icons/alice.jpg")
}

func TestSetBanner_PostWithoutImage(t *testing.T) {
	fx := newFixture(t)
	fx.repo.post = &models.Post{PostID: 1, Uploader: 7}

	err := fx.svc.SetBanner(context.Background(), testUser, &models.IconRequest{
		PostID:      "AAAAAAAB",
		Coordinates: models.CropCoordinates{Width: 300, Height: 100},
	})
	assert.Equal(t, 400, httpStatus(t, err))
}
