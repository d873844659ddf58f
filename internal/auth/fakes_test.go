package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nalauth/server/internal/model"
	"github.com/nalauth/server/internal/repo"
)

// In-memory fakes mirroring the storage semantics, so the orchestration layer
// can be exercised without PostgreSQL.

type fakeOtpRepo struct {
	mu         sync.Mutex
	challenges map[string]*model.OtpChallenge
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{challenges: make(map[string]*model.OtpChallenge)}
}

func (f *fakeOtpRepo) CreateReplacing(ctx context.Context, phone, codeHash string, expiresAt time.Time, maxAttempts int) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &model.OtpChallenge{
		ID:          uuid.New(),
		PhoneNumber: phone,
		CodeHash:    codeHash,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	f.challenges[phone] = ch
	return ch.ID, nil
}

func (f *fakeOtpRepo) VerifyChallenge(ctx context.Context, phone, candidateHash string) (model.OtpVerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.challenges[phone]
	if !ok || ch.Verified || time.Now().After(ch.ExpiresAt) {
		return model.OtpVerifyResult{Status: model.OtpVerifyNotFound}, nil
	}
	if ch.AttemptCount >= ch.MaxAttempts {
		ch.ExpiresAt = time.Now()
		return model.OtpVerifyResult{Status: model.OtpVerifyMaxAttempts}, nil
	}
	if ch.CodeHash == candidateHash {
		ch.Verified = true
		return model.OtpVerifyResult{Status: model.OtpVerifySuccess}, nil
	}
	ch.AttemptCount++
	return model.OtpVerifyResult{
		Status:            model.OtpVerifyMismatch,
		AttemptsRemaining: ch.MaxAttempts - ch.AttemptCount,
	}, nil
}

func (f *fakeOtpRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeOtpRepo) expire(phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.challenges[phone]; ok {
		ch.ExpiresAt = time.Now().Add(-time.Second)
	}
}

type fakeRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int
	max    int
	retry  time.Duration
	err    error
}

func newFakeRateLimitRepo(max int, retry time.Duration) *fakeRateLimitRepo {
	return &fakeRateLimitRepo{counts: make(map[string]int), max: max, retry: retry}
}

func (f *fakeRateLimitRepo) ConsumeSlot(ctx context.Context, subject, purpose string, window time.Duration, max int) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	key := subject + ":" + purpose
	if f.counts[key] >= f.max {
		return false, f.retry, nil
	}
	f.counts[key]++
	return true, 0, nil
}

func (f *fakeRateLimitRepo) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeUserRepo struct {
	mu      sync.Mutex
	byPhone map[string]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byPhone: make(map[string]model.User)}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byPhone {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (f *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byPhone[phone]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) UpsertOnLogin(ctx context.Context, phone string) (model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if u, ok := f.byPhone[phone]; ok {
		u.LastLogin = &now
		u.UpdatedAt = now
		f.byPhone[phone] = u
		return u, false, nil
	}
	u := model.User{
		ID:          uuid.New(),
		PhoneNumber: phone,
		IsVerified:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLogin:   &now,
	}
	f.byPhone[phone] = u
	return u, true, nil
}

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
	users  *fakeUserRepo
}

func newFakeRefreshRepo(users *fakeUserRepo) *fakeRefreshRepo {
	return &fakeRefreshRepo{
		tokens: make(map[string]*model.RefreshToken),
		users:  users,
	}
}

func (f *fakeRefreshRepo) userByID(ctx context.Context, id uuid.UUID) model.User {
	u, _ := f.users.GetByID(ctx, id)
	return u
}

func (f *fakeRefreshRepo) CreateReplacing(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeAllLocked(userID)
	rt := &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	f.tokens[tokenHash] = rt
	return rt.ID, nil
}

func (f *fakeRefreshRepo) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[tokenHash]
	if !ok || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		return model.RefreshToken{}, model.User{}, repo.ErrNotFound
	}
	return *rt, f.userByID(ctx, rt.UserID), nil
}

func (f *fakeRefreshRepo) Rotate(ctx context.Context, oldHash, newHash string, expiresAt time.Time) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[oldHash]
	if !ok || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		return model.User{}, repo.ErrNotFound
	}
	f.revokeAllLocked(rt.UserID)
	f.tokens[newHash] = &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    rt.UserID,
		TokenHash: newHash,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	return f.userByID(ctx, rt.UserID), nil
}

func (f *fakeRefreshRepo) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[tokenHash]
	if !ok || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		return false, nil
	}
	rt.Revoked = true
	return true, nil
}

func (f *fakeRefreshRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokeAllLocked(userID), nil
}

func (f *fakeRefreshRepo) revokeAllLocked(userID uuid.UUID) int64 {
	var n int64
	for _, rt := range f.tokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			n++
		}
	}
	return n
}

type fakeProfileRepo struct {
	mu     sync.Mutex
	exists map[uuid.UUID]bool
	pct    map[uuid.UUID]int
	err    error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{
		exists: make(map[uuid.UUID]bool),
		pct:    make(map[uuid.UUID]int),
	}
}

func (f *fakeProfileRepo) set(userID uuid.UUID, pct int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists[userID] = true
	f.pct[userID] = pct
}

func (f *fakeProfileRepo) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.exists[userID], nil
}

func (f *fakeProfileRepo) CompletionPercentage(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.pct[userID], nil
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string // codes in send order
	phone string
	err   error
}

func (f *fakeSender) Send(ctx context.Context, phoneNumber, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.phone = phoneNumber
	f.sent = append(f.sent, code)
	return nil
}

func (f *fakeSender) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}
