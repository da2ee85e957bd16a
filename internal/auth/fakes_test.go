package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeDirectory struct {
	mu     sync.Mutex
	byID   map[string]*Principal
	emails map[string]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byID: map[string]*Principal{}, emails: map[string]string{}}
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d.byID[id]
	return &cp, nil
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *fakeDirectory) Create(_ context.Context, p *Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.emails[p.Email]; ok {
		return ErrDuplicateEmail
	}
	cp := *p
	d.byID[p.ID] = &cp
	d.emails[p.Email] = p.ID
	return nil
}

func (d *fakeDirectory) List(_ context.Context) ([]Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Principal, 0, len(d.byID))
	for _, p := range d.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (d *fakeDirectory) UpdateRole(_ context.Context, id string, role Role, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	return nil
}

func (d *fakeDirectory) UpdateProfile(_ context.Context, id string, profile Profile, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Nickname, p.FirstName, p.LastName = profile.Nickname, profile.FirstName, profile.LastName
	p.UpdatedAt = at
	return nil
}

func (d *fakeDirectory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(d.emails, p.Email)
	delete(d.byID, id)
	return nil
}

type fakeRefreshStore struct {
	mu    sync.Mutex
	rows  map[string]*RefreshToken
	owner map[string]string
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{rows: map[string]*RefreshToken{}, owner: map[string]string{}}
}

func (f *fakeRefreshStore) Get(_ context.Context, id string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRefreshStore) GetByPrincipal(ctx context.Context, principalID string) (*RefreshToken, error) {
	f.mu.Lock()
	id, ok := f.owner[principalID]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return f.Get(ctx, id)
}

func (f *fakeRefreshStore) Upsert(_ context.Context, principalID, newID, hash string, expiresAt, now time.Time) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.owner[principalID]
	if !ok {
		id = newID
		f.owner[principalID] = id
		f.rows[id] = &RefreshToken{ID: id, PrincipalID: principalID, CreatedAt: now}
	}
	row := f.rows[id]
	row.TokenHash = hash
	row.ExpiresAt = expiresAt
	row.Revoked = false
	row.RotatedAt = now
	cp := *row
	return &cp, nil
}

func (f *fakeRefreshStore) Revoke(_ context.Context, id, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.TokenHash != hash {
		return false, nil
	}
	row.Revoked = true
	return true, nil
}

func (f *fakeRefreshStore) DeleteByPrincipal(_ context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.owner[principalID]
	if !ok {
		return nil
	}
	delete(f.rows, id)
	delete(f.owner, principalID)
	return nil
}

func (f *fakeRefreshStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type testEnv struct {
	clock   *fakeClock
	dir     *fakeDirectory
	tokens  *fakeRefreshStore
	signer  *Signer
	refresh *RefreshManager
	svc     *Service
}

func newTestEnv(t interface{ Fatalf(string, ...any) }, opts ...ServiceOption) *testEnv {
	clock := newClock()
	dir := newFakeDirectory()
	tokens := newFakeRefreshStore()
	signer, err := NewSigner(testSecret, WithSignerClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	refresh := NewRefreshManager(tokens, WithRefreshClock(clock.Now))
	opts = append([]ServiceOption{WithClock(clock.Now), WithHasher(BcryptHasher{Cost: bcrypt.MinCost})}, opts...)
	svc, err := NewService(dir, signer, refresh, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &testEnv{clock: clock, dir: dir, tokens: tokens, signer: signer, refresh: refresh, svc: svc}
}
