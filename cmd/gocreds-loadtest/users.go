package main

import (
	"context"
	"strconv"
	"sync"

	goCreds "github.com/MrEthical07/goCreds"
)

// userDirectory is an in-memory goCreds.UserProvider.
type userDirectory struct {
	mu      sync.RWMutex
	nextID  int
	byID    map[string]goCreds.User
	byEmail map[string]string
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		byID:    make(map[string]goCreds.User),
		byEmail: make(map[string]string),
	}
}

func (d *userDirectory) FindBySubjectID(_ context.Context, subjectID string) (goCreds.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[subjectID]
	if !ok {
		return goCreds.User{}, goCreds.ErrUserNotFound
	}
	return u, nil
}

func (d *userDirectory) FindByEmail(_ context.Context, email string) (goCreds.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[email]
	if !ok {
		return goCreds.User{}, goCreds.ErrUserNotFound
	}
	return d.byID[id], nil
}

func (d *userDirectory) CreateUser(_ context.Context, in goCreds.CreateUserInput) (goCreds.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[in.Email]; ok {
		return goCreds.User{}, goCreds.ErrAlreadyExists
	}
	d.nextID++
	u := goCreds.User{
		SubjectID:    "lt-" + strconv.Itoa(d.nextID),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	d.byID[u.SubjectID] = u
	d.byEmail[u.Email] = u.SubjectID
	return u, nil
}

func (d *userDirectory) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[subjectID]
	if !ok {
		return goCreds.ErrUserNotFound
	}
	u.PasswordHash = hash
	d.byID[subjectID] = u
	return nil
}

func (d *userDirectory) MarkConfirmed(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[subjectID]
	if !ok {
		return goCreds.ErrUserNotFound
	}
	u.Confirmed = true
	d.byID[subjectID] = u
	return nil
}
