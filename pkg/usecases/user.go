package usecases

import (
	"context"
	"sort"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
)

type UserUseCases struct {
	repo repo.UserRepoImply
}

type UserUseCaseImply interface {
	Me(context.Context, string) (*entities.User, error)
	BlockUser(ctx context.Context, user, target string) error
	UnblockUser(ctx context.Context, user, target string) error
	ListBlocked(context.Context, string) ([]*entities.User, error)
	RegisterDevice(ctx context.Context, user, deviceID string) error
}

// NewUserUseCases
func NewUserUseCases(userRepo repo.UserRepoImply) UserUseCaseImply {
	return &UserUseCases{
		repo: userRepo,
	}
}

func (usecase *UserUseCases) Me(ctx context.Context, user string) (*entities.User, error) {
	u, err := usecase.repo.GetUser(ctx, user)
	if err != nil {
		return nil, storeError(err, "user")
	}
	return u, nil
}

// BlockUser adds target to the caller's block list. Blocking is one
// directional and idempotent.
func (usecase *UserUseCases) BlockUser(ctx context.Context, user, target string) error {
	if user == target {
		return entities.NewInvalidOperationError("you cannot block yourself")
	}

	if _, err := usecase.repo.GetUser(ctx, target); err != nil {
		return storeError(err, "user")
	}

	if err := usecase.repo.BlockUser(ctx, user, target); err != nil {
		return storeError(err, "user")
	}
	return nil
}

func (usecase *UserUseCases) UnblockUser(ctx context.Context, user, target string) error {
	if err := usecase.repo.UnblockUser(ctx, user, target); err != nil {
		return storeError(err, "user")
	}
	return nil
}

// ListBlocked returns the id and name of every user the caller blocked.
func (usecase *UserUseCases) ListBlocked(ctx context.Context, user string) ([]*entities.User, error) {
	u, err := usecase.repo.GetUser(ctx, user)
	if err != nil {
		return nil, storeError(err, "user")
	}
	if len(u.BlockedUsers) == 0 {
		return []*entities.User{}, nil
	}

	known, err := usecase.repo.GetUsers(ctx, u.BlockedUsers)
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to load blocked users", err)
	}

	blocked := make([]*entities.User, 0, len(u.BlockedUsers))
	for _, id := range u.BlockedUsers {
		entry := &entities.User{ID: id}
		if k, ok := known[id]; ok {
			entry.Name = k.Name
			entry.Status = k.Status
		}
		blocked = append(blocked, entry)
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })

	return blocked, nil
}

func (usecase *UserUseCases) RegisterDevice(ctx context.Context, user, deviceID string) error {
	if deviceID == "" {
		return entities.NewValidationError("device id is required")
	}

	if err := usecase.repo.AddDevice(ctx, user, deviceID); err != nil {
		return entities.NewUnexpectedError("failed to register device", err)
	}
	return nil
}
