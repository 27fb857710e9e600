package retention

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) SavePolicy(ctx context.Context, p *Policy) error {
	overrides, err := json.Marshal(orEmptyOverrides(p.TeamOverrides))
	if err != nil {
		return err
	}
	return s.DB.QueryRow(ctx, `
    INSERT INTO retention_policies
      (name, data_class, retention_days, critical_retention_days, team_overrides,
       preserve_count, schedule, enabled, legal_hold_exempt)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (name) DO UPDATE SET
      data_class = EXCLUDED.data_class,
      retention_days = EXCLUDED.retention_days,
      critical_retention_days = EXCLUDED.critical_retention_days,
      team_overrides = EXCLUDED.team_overrides,
      preserve_count = EXCLUDED.preserve_count,
      schedule = EXCLUDED.schedule,
      enabled = EXCLUDED.enabled,
      legal_hold_exempt = EXCLUDED.legal_hold_exempt,
      updated_at = now()
    RETURNING id, created_at, updated_at
  `, p.Name, p.DataClass, p.RetentionDays, p.CriticalRetentionDays, overrides,
		p.PreserveCount, p.Schedule, p.Enabled, p.LegalHoldExempt).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, data_class, retention_days, critical_retention_days,
           team_overrides, preserve_count, schedule, enabled, legal_hold_exempt,
           created_at, updated_at
    FROM retention_policies
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var p Policy
		var overrides []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.DataClass, &p.RetentionDays,
			&p.CriticalRetentionDays, &overrides, &p.PreserveCount, &p.Schedule,
			&p.Enabled, &p.LegalHoldExempt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(overrides, &p.TeamOverrides); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *PostgresStore) DeletePolicy(ctx context.Context, name string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM retention_policies WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddHold(ctx context.Context, h *LegalHold) error {
	exempt, err := json.Marshal(orEmptyIDs(h.ExemptIDs))
	if err != nil {
		return err
	}
	return s.DB.QueryRow(ctx, `
    INSERT INTO legal_holds (team_id, data_class, reason, created_by, expires_at, exempt_ids)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at
  `, h.TeamID, h.DataClass, h.Reason, h.CreatedBy, h.ExpiresAt, exempt).
		Scan(&h.ID, &h.CreatedAt)
}

func (s *PostgresStore) RemoveHold(ctx context.Context, id string) (*LegalHold, error) {
	var h LegalHold
	var exempt []byte
	err := s.DB.QueryRow(ctx, `
    DELETE FROM legal_holds
    WHERE id = $1
    RETURNING id, team_id, data_class, reason, created_by, expires_at, exempt_ids, created_at
  `, id).Scan(&h.ID, &h.TeamID, &h.DataClass, &h.Reason, &h.CreatedBy,
		&h.ExpiresAt, &exempt, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(exempt, &h.ExemptIDs); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) ListHolds(ctx context.Context) ([]LegalHold, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, team_id, data_class, reason, created_by, expires_at, exempt_ids, created_at
    FROM legal_holds
    ORDER BY created_at
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []LegalHold
	for rows.Next() {
		var h LegalHold
		var exempt []byte
		if err := rows.Scan(&h.ID, &h.TeamID, &h.DataClass, &h.Reason,
			&h.CreatedBy, &h.ExpiresAt, &exempt, &h.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(exempt, &h.ExemptIDs); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

func orEmptyOverrides(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func orEmptyIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
