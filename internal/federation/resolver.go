package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/metrics"
)

// Resolver folds a normalized claim into the identity store: one User per
// person, one Identity per (provider, subject), claims refreshed on every
// login. It holds no state of its own; the (provider, subject) unique index
// in the store is what makes concurrent resolution safe.
type Resolver struct {
	users      domain.UserRepository
	identities domain.IdentityRepository
}

// NewResolver creates a Resolver over the given repositories.
func NewResolver(users domain.UserRepository, identities domain.IdentityRepository) *Resolver {
	return &Resolver{
		users:      users,
		identities: identities,
	}
}

// Resolve returns the User owning the claim's (provider, subject) pair,
// creating User and Identity on first contact. When two logins race on a
// brand-new pair, the store's unique index lets exactly one insert win; the
// loser discards its provisional user and adopts the winner's. Either way
// the stored claim payload ends up reflecting this login.
func (r *Resolver) Resolve(ctx context.Context, claim *Claim, providerToken *oauth2.Token) (*domain.User, error) {
	if claim.Provider == "" || claim.Subject == "" {
		return nil, fmt.Errorf("claim is missing provider or subject")
	}

	now := time.Now().UTC()
	ident := identityFromClaim(claim, providerToken, now)

	_, err := r.identities.FindByProviderSubject(ctx, claim.Provider, claim.Subject)
	switch {
	case err == nil:
		return r.refresh(ctx, ident, claim, now)
	case errors.Is(err, aerrors.ErrNotFound):
		// fall through to the create path
	default:
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}

	user := userFromClaim(claim, now)
	if err := r.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	ident.ID = uuid.NewString()
	ident.UserID = user.ID
	ident.CreatedAt = now

	if err := r.identities.Insert(ctx, ident); err != nil {
		if errors.Is(err, aerrors.ErrConflict) {
			// Lost the insert race. The provisional user was never linked
			// or returned to anyone, so drop it and join the winner.
			if delErr := r.users.Delete(ctx, user.ID); delErr != nil {
				log.Warn().Err(delErr).Str("user_id", user.ID).
					Msg("failed to discard provisional user after identity insert race")
			}
			return r.refresh(ctx, ident, claim, now)
		}
		return nil, fmt.Errorf("failed to insert identity: %w", err)
	}

	metrics.FederationUsersCreatedTotal.Inc()
	log.Info().
		Str("provider", claim.Provider).
		Str("subject", claim.Subject).
		Str("user_id", user.ID).
		Msg("new user federated")

	return user, nil
}

// refresh updates the stored claim payload for an existing identity and
// syncs the owning user's profile from it.
func (r *Resolver) refresh(ctx context.Context, ident *domain.Identity, claim *Claim, now time.Time) (*domain.User, error) {
	stored, err := r.identities.UpdateClaims(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("failed to update identity claims: %w", err)
	}

	user, err := r.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s for identity: %w", stored.UserID, err)
	}

	applyClaim(user, claim, now)
	if err := r.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to sync user profile: %w", err)
	}

	return user, nil
}

// identityFromClaim builds the claim-payload view of an Identity. ID, UserID
// and CreatedAt are filled by the caller on the insert path and ignored by
// UpdateClaims.
func identityFromClaim(claim *Claim, token *oauth2.Token, now time.Time) *domain.Identity {
	ident := &domain.Identity{
		Provider:  claim.Provider,
		Subject:   claim.Subject,
		Email:     claim.Email,
		Name:      claim.Name,
		Username:  claim.Username,
		Picture:   claim.Picture,
		RawClaims: claim.Raw,
		UpdatedAt: now,
	}

	if token != nil {
		ident.AccessToken = token.AccessToken
		ident.RefreshToken = token.RefreshToken
		if !token.Expiry.IsZero() {
			expiry := token.Expiry
			ident.TokenExpiresAt = &expiry
		}
	}

	return ident
}

// userFromClaim builds a fresh user for a first-time federation.
func userFromClaim(claim *Claim, now time.Time) *domain.User {
	lastLogin := now
	return &domain.User{
		ID:          uuid.NewString(),
		Email:       claim.Email,
		Name:        claim.Name,
		Picture:     claim.Picture,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: &lastLogin,
	}
}

// applyClaim copies the claim's profile fields onto the user, keeping
// existing values where the provider sent nothing.
func applyClaim(user *domain.User, claim *Claim, now time.Time) {
	if claim.Email != "" {
		user.Email = claim.Email
	}
	if claim.Name != "" {
		user.Name = claim.Name
	}
	if claim.Picture != "" {
		user.Picture = claim.Picture
	}
	lastLogin := now
	user.LastLoginAt = &lastLogin
	user.UpdatedAt = now
}
