package otp

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozanyurt/caseflow/internal/apperr"
)

type fakeStore struct {
	values map[string]string
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", apperr.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) (int64, error) {
	if _, ok := f.values[key]; !ok {
		return 0, nil
	}
	delete(f.values, key)
	return 1, nil
}

type fakeNotifier struct {
	sent      []string
	resetSent []string
	err       error
}

func (f *fakeNotifier) SendOTPEmail(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, code)
	return nil
}

func (f *fakeNotifier) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.resetSent = append(f.resetSent, code)
	return nil
}

func newTestService(store Store, notifier Notifier) *Service {
	return NewService(store, notifier, 5*time.Minute, slog.Default())
}

func TestGenerateStoresSixDigitCode(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	require.NoError(t, svc.Generate(context.Background(), "u1", "u1@example.com"))

	code := store.values["otp:u1"]
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	require.Len(t, notifier.sent, 1, "exactly one notification per generate")
	assert.Equal(t, code, notifier.sent[0])
}

func TestVerifyConsumesCodeOnMatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	require.NoError(t, svc.Generate(ctx, "u1", "u1@example.com"))
	code := store.values["otp:u1"]

	ok, err := svc.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.True(t, ok)

	// Single use: the same code must not verify twice.
	ok, err = svc.Verify(ctx, "u1", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsMismatchAndAbsence(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	ok, err := svc.Verify(ctx, "u1", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "absent code must not verify")

	require.NoError(t, svc.Generate(ctx, "u1", "u1@example.com"))
	ok, err = svc.Verify(ctx, "u1", "000000")
	require.NoError(t, err)
	assert.False(t, ok, "mismatched code must not verify")
	assert.NotEmpty(t, store.values["otp:u1"], "mismatch must not consume the code")
}

func TestResendSupersedesPriorCode(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	require.NoError(t, svc.Generate(ctx, "u1", "u1@example.com"))
	first := store.values["otp:u1"]

	superseded, err := svc.Resend(ctx, "u1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), superseded)

	second := store.values["otp:u1"]
	if first == second {
		// A collision is possible but astronomically unlikely; treat as failure
		// to catch a resend that did not regenerate.
		t.Fatalf("resend did not replace the code")
	}

	ok, err := svc.Verify(ctx, "u1", first)
	require.NoError(t, err)
	assert.False(t, ok, "superseded code must not verify")

	ok, err = svc.Verify(ctx, "u1", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResendResetUsesResetTemplate(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	require.NoError(t, svc.Generate(ctx, "u1", "u1@example.com"))
	superseded, err := svc.ResendReset(ctx, "u1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), superseded)
	require.Len(t, notifier.resetSent, 1, "reset codes travel on the reset template")
	assert.Equal(t, store.values["otp:u1"], notifier.resetSent[0])
	assert.Len(t, notifier.sent, 1, "only the initial generate used the verification template")
}

func TestResendWithoutPriorCode(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeNotifier{})
	superseded, err := svc.Resend(context.Background(), "u1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), superseded)
}

func TestGenerateFailsWhenDispatchFails(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeNotifier{err: errors.New("queue down")})
	err := svc.Generate(context.Background(), "u1", "u1@example.com")
	require.Error(t, err, "an unsent otp must not be treated as sent")
}

func TestGenerateFailsWhenStoreFails(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("redis down")
	svc := newTestService(store, &fakeNotifier{})
	require.Error(t, svc.Generate(context.Background(), "u1", "u1@example.com"))
}
