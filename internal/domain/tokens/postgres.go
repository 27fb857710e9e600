package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

const tokenColumns = `id, team_id, user_id, token_type, ciphertext, algorithm, key_id, scope,
    revoked, revoked_reason, revoked_at, created_at, updated_at`

func (s *PostgresStore) SaveOAuthGrant(ctx context.Context, team *Team, toks []*Token, supersedeReason string) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO teams (id, team_name, team_domain, enterprise_id, enterprise_name, is_active, updated_at)
    VALUES ($1,$2,$3,$4,$5,TRUE,now())
    ON CONFLICT (id) DO UPDATE SET
      team_name = EXCLUDED.team_name,
      team_domain = EXCLUDED.team_domain,
      enterprise_id = EXCLUDED.enterprise_id,
      enterprise_name = EXCLUDED.enterprise_name,
      is_active = TRUE,
      updated_at = now()
  `, team.ID, team.Name, team.Domain, nullable(team.EnterpriseID), nullable(team.EnterpriseName)); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
    UPDATE tokens
    SET revoked = TRUE, revoked_reason = $2, revoked_at = now(), updated_at = now()
    WHERE team_id = $1 AND revoked = FALSE
  `, team.ID, supersedeReason)
	if err != nil {
		return 0, err
	}
	superseded := tag.RowsAffected()

	for _, tok := range toks {
		if err := tx.QueryRow(ctx, `
      INSERT INTO tokens (team_id, user_id, token_type, ciphertext, algorithm, key_id, scope)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      RETURNING id, created_at, updated_at
    `, tok.TeamID, tok.UserID, tok.Type, tok.Ciphertext, tok.Algorithm, tok.KeyID, tok.Scope).
			Scan(&tok.ID, &tok.CreatedAt, &tok.UpdatedAt); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return superseded, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	var team Team
	var entID, entName *string
	err := s.DB.QueryRow(ctx, `
    SELECT id, team_name, team_domain, enterprise_id, enterprise_name, is_active, created_at, updated_at
    FROM teams
    WHERE id = $1
  `, teamID).Scan(&team.ID, &team.Name, &team.Domain, &entID, &entName, &team.Active, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	team.EnterpriseID = deref(entID)
	team.EnterpriseName = deref(entName)
	return &team, nil
}

func (s *PostgresStore) DeactivateTeam(ctx context.Context, teamID string) error {
	_, err := s.DB.Exec(ctx, `UPDATE teams SET is_active = FALSE, updated_at = now() WHERE id = $1`, teamID)
	return err
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	return tag.RowsAffected(), err
}

func (s *PostgresStore) GetToken(ctx context.Context, tokenID string) (*Token, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, tokenID)
	tok, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *PostgresStore) LatestActiveToken(ctx context.Context, teamID string, typ TokenType, userID string) (*Token, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+tokenColumns+`
    FROM tokens
    WHERE team_id = $1 AND token_type = $2 AND user_id = $3 AND revoked = FALSE
    ORDER BY created_at DESC
    LIMIT 1
  `, teamID, typ, userID)
	tok, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *PostgresStore) ListActiveTokens(ctx context.Context, teamID string) ([]Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE revoked = FALSE`
	args := []any{}
	if teamID != "" {
		query += ` AND team_id = $1`
		args = append(args, teamID)
	}
	query += ` ORDER BY created_at ASC`
	return s.queryTokens(ctx, query, args...)
}

func (s *PostgresStore) ListRevokedBefore(ctx context.Context, cutoff time.Time) ([]Token, error) {
	return s.queryTokens(ctx, `
    SELECT `+tokenColumns+`
    FROM tokens
    WHERE revoked = TRUE AND revoked_at IS NOT NULL AND revoked_at < $1
    ORDER BY revoked_at ASC
  `, cutoff)
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, tokenID, reason string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE tokens
    SET revoked = TRUE, revoked_reason = $2, revoked_at = $3, updated_at = now()
    WHERE id = $1 AND revoked = FALSE
  `, tokenID, reason, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RevokeActiveTokens(ctx context.Context, teamID, reason string, at time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE tokens
    SET revoked = TRUE, revoked_reason = $2, revoked_at = $3, updated_at = now()
    WHERE team_id = $1 AND revoked = FALSE
  `, teamID, reason, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteToken(ctx context.Context, tokenID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, tokenID)
	return err
}

func (s *PostgresStore) DeleteTeamTokens(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM tokens WHERE team_id = $1`, teamID)
	return tag.RowsAffected(), err
}

func (s *PostgresStore) ListTokensByKeyID(ctx context.Context, keyID string, limit int) ([]Token, error) {
	return s.queryTokens(ctx, `
    SELECT `+tokenColumns+`
    FROM tokens
    WHERE key_id = $1
    ORDER BY created_at ASC
    LIMIT $2
  `, keyID, limit)
}

func (s *PostgresStore) UpdateCiphertext(ctx context.Context, tokenID, ciphertext, algorithm, keyID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE tokens
    SET ciphertext = $2, algorithm = $3, key_id = $4, updated_at = now()
    WHERE id = $1
  `, tokenID, ciphertext, algorithm, keyID)
	return err
}

func (s *PostgresStore) queryTokens(ctx context.Context, query string, args ...any) ([]Token, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tok)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*Token, error) {
	var tok Token
	var reason *string
	if err := row.Scan(&tok.ID, &tok.TeamID, &tok.UserID, &tok.Type, &tok.Ciphertext,
		&tok.Algorithm, &tok.KeyID, &tok.Scope, &tok.Revoked, &reason, &tok.RevokedAt,
		&tok.CreatedAt, &tok.UpdatedAt); err != nil {
		return nil, err
	}
	tok.RevokedReason = deref(reason)
	return &tok, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
