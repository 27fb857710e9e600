package tokens

import (
	"context"
	"time"
)

// Store is the only surface that touches the teams and tokens tables.
type Store interface {
	// SaveOAuthGrant atomically upserts the team, revokes all of its
	// active tokens with the supersede reason, and inserts the new
	// rows. Returns the number of superseded tokens.
	SaveOAuthGrant(ctx context.Context, team *Team, toks []*Token, supersedeReason string) (int64, error)

	GetTeam(ctx context.Context, teamID string) (*Team, error)
	DeactivateTeam(ctx context.Context, teamID string) error
	DeleteTeam(ctx context.Context, teamID string) (int64, error)

	GetToken(ctx context.Context, tokenID string) (*Token, error)
	// LatestActiveToken returns the most recently created non-revoked
	// token for (team, type, user). userID is empty for bot tokens.
	LatestActiveToken(ctx context.Context, teamID string, typ TokenType, userID string) (*Token, error)
	// ListActiveTokens returns non-revoked tokens; empty teamID means
	// every team.
	ListActiveTokens(ctx context.Context, teamID string) ([]Token, error)
	// ListRevokedBefore returns revoked tokens whose revocation is
	// older than the cutoff, for retention.
	ListRevokedBefore(ctx context.Context, cutoff time.Time) ([]Token, error)
	// MarkRevoked flips the revoked flag once. Returns false when the
	// token was already revoked (the stamp is not overwritten).
	MarkRevoked(ctx context.Context, tokenID, reason string, at time.Time) (bool, error)
	// RevokeActiveTokens bulk-revokes every active token of a team.
	RevokeActiveTokens(ctx context.Context, teamID, reason string, at time.Time) (int64, error)

	DeleteToken(ctx context.Context, tokenID string) error
	// DeleteTeamTokens physically removes every token row for a team.
	DeleteTeamTokens(ctx context.Context, teamID string) (int64, error)

	// ListTokensByKeyID pages token rows still encrypted under a key,
	// for the re-encryption batch job.
	ListTokensByKeyID(ctx context.Context, keyID string, limit int) ([]Token, error)
	// UpdateCiphertext swaps a row's envelope after re-encryption.
	UpdateCiphertext(ctx context.Context, tokenID, ciphertext, algorithm, keyID string) error
}
