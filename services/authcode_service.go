package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/metrics"
)

// codeLength is the entropy of an authorization code value, in bytes.
const codeLength = 32

// AuthCodeService issues and redeems authorization codes. Redemption burns
// the code before validating anything else, so a presented-but-invalid code
// can never be presented again.
type AuthCodeService struct {
	repo    domain.AuthCodeRepository
	codeTTL time.Duration
}

func NewAuthCodeService(repo domain.AuthCodeRepository, codeTTL time.Duration) *AuthCodeService {
	return &AuthCodeService{
		repo:    repo,
		codeTTL: codeTTL,
	}
}

// IssueCodeOptions carries everything the authorize endpoint binds into a
// code at issue time.
type IssueCodeOptions struct {
	Client              *client.Client
	UserID              string
	RedirectURI         string
	ResponseType        string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	AuthTime            time.Time
}

// Issue mints a crypto-random code bound to the request parameters.
func (s *AuthCodeService) Issue(ctx context.Context, opts IssueCodeOptions) (*domain.AuthCode, error) {
	value, err := generateOpaqueValue(codeLength)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	authTime := opts.AuthTime
	if authTime.IsZero() {
		authTime = now
	}

	method := opts.CodeChallengeMethod
	if opts.CodeChallenge != "" && method == "" {
		// RFC 7636 §4.3: challenge without a method means plain.
		method = PKCEMethodPlain
	}

	code := &domain.AuthCode{
		Code:                value,
		ClientID:            opts.Client.ID,
		UserID:              opts.UserID,
		RedirectURI:         opts.RedirectURI,
		ResponseType:        opts.ResponseType,
		Scope:               opts.Scope,
		CodeChallenge:       opts.CodeChallenge,
		CodeChallengeMethod: method,
		Nonce:               opts.Nonce,
		Status:              domain.CodeStatusIssued,
		AuthTime:            authTime,
		ExpiresAt:           now.Add(s.codeTTL),
	}

	if err := s.repo.Save(ctx, code); err != nil {
		return nil, err
	}

	metrics.AuthCodesIssuedTotal.Inc()
	return code, nil
}

// Redeem consumes a code and validates the binding. The consume step is the
// atomic issued->redeemed transition in the store; with concurrent redeemers
// exactly one gets past it. Every failure after the transition leaves the
// code redeemed.
//
// Unknown, replayed, and foreign-client codes all return
// ErrCodeConsumedOrUnknown; a caller probing codes learns nothing from the
// response.
func (s *AuthCodeService) Redeem(ctx context.Context, codeValue string, cli *client.Client, redirectURI, verifier string) (*domain.AuthCode, error) {
	code, err := s.repo.Redeem(ctx, codeValue)
	if err != nil {
		if errors.Is(err, aerrors.ErrCodeConsumedOrUnknown) {
			metrics.AuthCodesRedeemedTotal.WithLabelValues("unknown_or_replayed").Inc()
		}
		return nil, err
	}

	if code.ClientID != cli.ID {
		log.Warn().Str("client_id", cli.ID).Str("code_client_id", code.ClientID).
			Msg("Authorization code presented by a different client")
		metrics.AuthCodesRedeemedTotal.WithLabelValues("client_mismatch").Inc()
		return nil, aerrors.ErrCodeConsumedOrUnknown
	}

	if code.RedirectURI != redirectURI {
		metrics.AuthCodesRedeemedTotal.WithLabelValues("redirect_mismatch").Inc()
		return nil, aerrors.ErrRedirectMismatch
	}

	if code.Expired(time.Now().UTC()) {
		metrics.AuthCodesRedeemedTotal.WithLabelValues("expired").Inc()
		return nil, aerrors.ErrCodeExpired
	}

	if code.CodeChallenge != "" {
		if !VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, verifier) {
			metrics.AuthCodesRedeemedTotal.WithLabelValues("pkce_failed").Inc()
			return nil, aerrors.ErrPKCEVerification
		}
	} else if verifier != "" {
		// A verifier against a code issued without a challenge is a protocol
		// violation (RFC 7636 §4.6).
		metrics.AuthCodesRedeemedTotal.WithLabelValues("pkce_failed").Inc()
		return nil, aerrors.ErrPKCEVerification
	}

	metrics.AuthCodesRedeemedTotal.WithLabelValues("ok").Inc()
	return code, nil
}

// ExpireIssued sweeps issued codes past their TTL into the expired state.
func (s *AuthCodeService) ExpireIssued(ctx context.Context) (int64, error) {
	return s.repo.ExpireIssued(ctx)
}
