package audit

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

const entryColumns = `id, event_type, team_id, token_id, actor_type, success, severity, category,
    details_ciphertext, details_algorithm, details_key_id, error_message, ip_address, user_agent,
    integrity_hash, created_at`

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_logs (`+entryColumns+`)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
  `, entry.ID, entry.EventType, nullable(entry.TeamID), nullable(entry.TokenID), entry.ActorType,
		entry.Success, entry.Severity, entry.Category,
		entry.DetailsCiphertext, entry.DetailsAlgorithm, entry.DetailsKeyID,
		nullable(entry.ErrorMessage), nullable(entry.IPAddress), nullable(entry.UserAgent),
		entry.IntegrityHash, entry.CreatedAt)
	return err
}

func (s *PostgresStore) LatestEntry(ctx context.Context) (*Entry, error) {
	return s.queryOne(ctx, `
    SELECT `+entryColumns+`
    FROM audit_logs
    ORDER BY id DESC
    LIMIT 1
  `)
}

func (s *PostgresStore) EntryBefore(ctx context.Context, t time.Time) (*Entry, error) {
	return s.queryOne(ctx, `
    SELECT `+entryColumns+`
    FROM audit_logs
    WHERE created_at < $1
    ORDER BY id DESC
    LIMIT 1
  `, t)
}

func (s *PostgresStore) ListSince(ctx context.Context, t time.Time) ([]Entry, error) {
	return s.queryMany(ctx, `
    SELECT `+entryColumns+`
    FROM audit_logs
    WHERE created_at >= $1
    ORDER BY id ASC
  `, t)
}

func (s *PostgresStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	return s.queryMany(ctx, `
    SELECT `+entryColumns+`
    FROM audit_logs
    WHERE created_at < $1
    ORDER BY id ASC
  `, cutoff)
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM audit_logs WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) DeleteByTeam(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM audit_logs WHERE team_id = $1`, teamID)
	return tag.RowsAffected(), err
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	row := s.DB.QueryRow(ctx, query, args...)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *PostgresStore) queryMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var teamID, tokenID, errMsg, ip, ua *string
	if err := row.Scan(&entry.ID, &entry.EventType, &teamID, &tokenID, &entry.ActorType,
		&entry.Success, &entry.Severity, &entry.Category,
		&entry.DetailsCiphertext, &entry.DetailsAlgorithm, &entry.DetailsKeyID,
		&errMsg, &ip, &ua, &entry.IntegrityHash, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.TeamID = deref(teamID)
	entry.TokenID = deref(tokenID)
	entry.ErrorMessage = deref(errMsg)
	entry.IPAddress = deref(ip)
	entry.UserAgent = deref(ua)
	return &entry, nil
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
