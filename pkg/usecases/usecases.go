package usecases

import (
	"context"
	"errors"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
)

type UseCases struct {
	repo     repo.Imply
	userRepo repo.UserRepoImply
}

type UseCaseImply interface {
	DBHealthHandler(context.Context) error
	VerifyUserAccess(context.Context, string) (*entities.User, error)
}

func NewUseCases(repo repo.Imply, userRepo repo.UserRepoImply) UseCaseImply {
	return &UseCases{
		repo:     repo,
		userRepo: userRepo,
	}
}

// HealthHandler
func (usecase *UseCases) DBHealthHandler(ctx context.Context) error {
	return usecase.repo.DBHealthCheck(ctx)
}

// VerifyUserAccess loads the caller and applies the access gate.
func (usecase *UseCases) VerifyUserAccess(ctx context.Context, userID string) (*entities.User, error) {
	user, err := usecase.userRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, entities.NewAuthenticationError("unknown user")
		}
		return nil, entities.NewUnexpectedError("failed to load user", err)
	}

	if !user.HasAccess() {
		return nil, entities.NewAccessDeniedError("account is not verified or not active")
	}

	return user, nil
}

// storeError translates a repository error, keeping NotFound for missing
// records.
func storeError(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return entities.NewNotFoundError("%s not found", what)
	}
	return entities.NewUnexpectedError("failed to access "+what, err)
}
