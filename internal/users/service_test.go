package users

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/cache"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/model"
)

type fakeRepo struct {
	users map[string]*model.User
	reads int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*model.User{}}
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	f.reads++
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeRepo) List(ctx context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	delete(f.users, id)
	return nil
}

func (f *fakeRepo) SetProfileImage(ctx context.Context, id, locator string) error {
	u, ok := f.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.ProfileImageURL = &locator
	return nil
}

func (f *fakeRepo) CountByRole(ctx context.Context) (int64, int64, error) {
	var total, admins int64
	for _, u := range f.users {
		total++
		if u.Role == model.RoleAdmin {
			admins++
		}
	}
	return total, admins, nil
}

func (f *fakeRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	for _, u := range f.users {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeCaseCounts struct {
	total     int64
	recent    int64
	aggregate model.DashboardCaseStats
	top       []model.TopUser
}

func (f *fakeCaseCounts) CountAll(ctx context.Context) (int64, error) { return f.total, nil }

func (f *fakeCaseCounts) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return f.recent, nil
}

func (f *fakeCaseCounts) GlobalAggregate(ctx context.Context) (model.DashboardCaseStats, error) {
	return f.aggregate, nil
}

func (f *fakeCaseCounts) TopOwners(ctx context.Context, limit int) ([]model.TopUser, error) {
	if len(f.top) > limit {
		return f.top[:limit], nil
	}
	return f.top, nil
}

type fakeDeleter struct {
	batches map[string][]string
}

func (f *fakeDeleter) DeleteBatch(ctx context.Context, ownerID string, caseIDs []string) (*cases.DeleteResult, error) {
	if f.batches == nil {
		f.batches = map[string][]string{}
	}
	f.batches[ownerID] = caseIDs
	return &cases.DeleteResult{Succeeded: caseIDs, Failed: []string{}}, nil
}

type fakeBlob struct {
	objects map[string][]byte
	deleted []string
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (f *fakeBlob) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.objects[key] = data
	return key, nil
}

func (f *fakeBlob) Delete(ctx context.Context, locator string) error {
	f.deleted = append(f.deleted, locator)
	delete(f.objects, locator)
	return nil
}

type fakeSnapshots struct {
	entries     map[string][]byte
	invalidated []string
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{entries: map[string][]byte{}}
}

func (f *fakeSnapshots) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, ok := f.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (f *fakeSnapshots) SetJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	f.entries[key] = raw
}

func (f *fakeSnapshots) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		f.invalidated = append(f.invalidated, key)
		delete(f.entries, key)
	}
}

type fakeOTPInvalidator struct {
	invalidated []string
}

func (f *fakeOTPInvalidator) Invalidate(ctx context.Context, userID string) (int64, error) {
	f.invalidated = append(f.invalidated, userID)
	return 1, nil
}

type fixture struct {
	svc       *Service
	repo      *fakeRepo
	counts    *fakeCaseCounts
	deleter   *fakeDeleter
	blobs     *fakeBlob
	snapshots *fakeSnapshots
	otp       *fakeOTPInvalidator
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newFakeRepo(),
		counts:    &fakeCaseCounts{},
		deleter:   &fakeDeleter{},
		blobs:     newFakeBlob(),
		snapshots: newFakeSnapshots(),
		otp:       &fakeOTPInvalidator{},
	}
	f.svc = NewService(f.repo, f.counts, f.deleter, f.blobs, f.snapshots, f.otp, slog.Default())
	return f
}

func (f *fixture) seedUser(id string, role model.Role) *model.User {
	u := &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Username:  id,
		Role:      role,
		Verified:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.repo.users[id] = u
	return u
}

func TestProfileIsCacheFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser("u1", model.RoleUser)

	first, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", first.ID)
	readsAfterMiss := f.repo.reads

	second, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", second.ID)
	assert.Equal(t, readsAfterMiss, f.repo.reads, "cache hit must not touch the repository")
}

func TestProfileCacheNeverHoldsPasswordHash(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.seedUser("u1", model.RoleUser)
	u.PasswordHash = "$2a$10$secret"

	_, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	raw := f.snapshots.entries[cache.ProfileKey("u1")]
	require.NotEmpty(t, raw)
	assert.NotContains(t, string(raw), "secret")
}

func TestProfileNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Profile(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUploadProfileImageReplacesOld(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.seedUser("u1", model.RoleUser)
	old := "profile-images/u1.png"
	u.ProfileImageURL = &old
	f.blobs.objects[old] = []byte("old")

	locator, err := f.svc.UploadProfileImage(ctx, "u1", "avatar.jpg", "image/jpeg", []byte("new"))
	require.NoError(t, err)
	assert.NotEmpty(t, locator)
	assert.Contains(t, f.blobs.deleted, old, "previous image must be removed")
	require.NotNil(t, f.repo.users["u1"].ProfileImageURL)
	assert.Equal(t, locator, *f.repo.users["u1"].ProfileImageURL)
	assert.Contains(t, f.snapshots.invalidated, cache.ProfileKey("u1"))
}

func TestUploadProfileImageValidation(t *testing.T) {
	f := newFixture()
	f.seedUser("u1", model.RoleUser)
	_, err := f.svc.UploadProfileImage(context.Background(), "u1", "avatar.jpg", "image/jpeg", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDashboardAggregates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser("admin", model.RoleAdmin)
	f.seedUser("u1", model.RoleUser)
	f.seedUser("u2", model.RoleUser)
	f.counts.total = 10
	f.counts.recent = 3
	f.counts.aggregate = model.DashboardCaseStats{AvgCompressionRatio: 55, MaxCompressionRatio: 80}
	f.counts.top = []model.TopUser{
		{Username: "u1", CaseCount: 6},
		{Username: "u2", CaseCount: 4},
	}

	stats, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Users.Total)
	assert.Equal(t, int64(1), stats.Users.Admins)
	assert.Equal(t, int64(2), stats.Users.RegularUsers)
	assert.Equal(t, int64(3), stats.Users.NewLastWeek)
	assert.Len(t, stats.Users.TopUsers, 2)
	assert.Equal(t, int64(10), stats.Cases.Total)
	assert.Equal(t, int64(3), stats.Cases.NewLastWeek)
	assert.Equal(t, 55.0, stats.Cases.AvgCompressionRatio)
}

func TestDeleteUserRemovesEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.seedUser("u1", model.RoleUser)
	u.CaseIDs = []string{"c1", "c2"}
	img := "profile-images/u1.png"
	u.ProfileImageURL = &img
	f.blobs.objects[img] = []byte("img")

	require.NoError(t, f.svc.DeleteUser(ctx, "u1"))

	assert.Equal(t, []string{"c1", "c2"}, f.deleter.batches["u1"], "owned cases must be deleted first")
	assert.Contains(t, f.blobs.deleted, img)
	assert.Equal(t, []string{"u1"}, f.otp.invalidated)
	_, still := f.repo.users["u1"]
	assert.False(t, still)
	assert.Contains(t, f.snapshots.invalidated, cache.ProfileKey("u1"))
	assert.Contains(t, f.snapshots.invalidated, cache.CaseListKey("u1"))
}

func TestDeleteUserNotFound(t *testing.T) {
	f := newFixture()
	err := f.svc.DeleteUser(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
