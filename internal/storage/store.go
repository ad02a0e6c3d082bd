package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"hivetrust/internal/config"
	"hivetrust/internal/model"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
	ErrNotFound          = errors.New("not found")
)

// Repository is the boundary between the analytics core and persisted
// breeding records, rules and raised signals.
type Repository interface {
	Init(ctx context.Context) error
	Close() error
	SaveSourceMeasures(ctx context.Context, rows []model.SourceMeasure) error
	SaveRegionalMeasures(ctx context.Context, rows []model.RegionalMeasure) error
	ListSourceMeasures(ctx context.Context, f MeasureFilter) ([]model.SourceMeasure, error)
	ListRegionalMeasures(ctx context.Context, f MeasureFilter) ([]model.RegionalMeasure, error)
	SaveRule(ctx context.Context, rule model.AlertRule) error
	GetRule(ctx context.Context, id string) (model.AlertRule, error)
	ListRules(ctx context.Context) ([]model.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error
	SaveSignals(ctx context.Context, signals []model.AlertSignal) error
	ListSignals(ctx context.Context, f SignalFilter) ([]model.AlertSignal, error)
}

type MeasureFilter struct {
	BreederID string
	RegionID  string
	Since     time.Time
	Until     time.Time
}

type SignalFilter struct {
	RuleID string
	Since  time.Time
	Limit  int
}

func NewStore(cfg config.StorageConfig) (Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

type sqlStore struct {
	db     *sqlx.DB
	schema []string
}

type sourceRow struct {
	ID          string   `db:"id"`
	BreederID   string   `db:"breeder_id"`
	QueenID     string   `db:"queen_id"`
	BeekeeperID string   `db:"beekeeper_id"`
	DateMS      int64    `db:"date_ms"`
	SI          *float64 `db:"si"`
	BV          *float64 `db:"bv"`
	Weight      *float64 `db:"weight"`
}

type regionalRow struct {
	ID          string   `db:"id"`
	RegionID    string   `db:"region_id"`
	BreederID   string   `db:"breeder_id"`
	QueenID     string   `db:"queen_id"`
	BeekeeperID string   `db:"beekeeper_id"`
	DateMS      int64    `db:"date_ms"`
	SI          *float64 `db:"si"`
	BV          *float64 `db:"bv"`
	HoneyKg     *float64 `db:"honey_kg"`
	EggDay      *float64 `db:"egg_day"`
}

type signalRow struct {
	RuleID       string  `db:"rule_id"`
	AtMS         int64   `db:"at_ms"`
	Scope        string  `db:"scope"`
	ScopeID      string  `db:"scope_id"`
	Metric       string  `db:"metric"`
	Value        float64 `db:"value"`
	ContextCount int     `db:"context_count"`
	Kind         string  `db:"kind"`
}

func (s *sqlStore) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) SaveSourceMeasures(ctx context.Context, rows []model.SourceMeasure) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(
		`INSERT INTO source_measures (id, breeder_id, queen_id, beekeeper_id, date_ms, si, bv, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			r.BreederID,
			r.QueenID,
			r.BeekeeperID,
			toMillis(r.Date),
			present(r.SI),
			present(r.BV),
			present(r.Weight),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) SaveRegionalMeasures(ctx context.Context, rows []model.RegionalMeasure) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(
		`INSERT INTO regional_measures (id, region_id, breeder_id, queen_id, beekeeper_id, date_ms, si, bv, honey_kg, egg_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			r.RegionID,
			r.BreederID,
			r.QueenID,
			r.BeekeeperID,
			toMillis(r.Date),
			present(r.SI),
			present(r.BV),
			present(r.HoneyKg),
			present(r.EggDay),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ListSourceMeasures(ctx context.Context, f MeasureFilter) ([]model.SourceMeasure, error) {
	query, args := measureQuery(
		`SELECT id, breeder_id, queen_id, beekeeper_id, date_ms, si, bv, weight FROM source_measures`,
		"breeder_id", f.BreederID, f)
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list source measures: %w", err)
	}
	out := make([]model.SourceMeasure, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.SourceMeasure{
			BreederID:   r.BreederID,
			QueenID:     r.QueenID,
			BeekeeperID: r.BeekeeperID,
			Date:        fromMillis(r.DateMS),
			SI:          r.SI,
			BV:          r.BV,
			Weight:      r.Weight,
		})
	}
	return out, nil
}

func (s *sqlStore) ListRegionalMeasures(ctx context.Context, f MeasureFilter) ([]model.RegionalMeasure, error) {
	query, args := measureQuery(
		`SELECT id, region_id, breeder_id, queen_id, beekeeper_id, date_ms, si, bv, honey_kg, egg_day FROM regional_measures`,
		"region_id", f.RegionID, f)
	var rows []regionalRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list regional measures: %w", err)
	}
	out := make([]model.RegionalMeasure, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RegionalMeasure{
			RegionID:    r.RegionID,
			BreederID:   r.BreederID,
			QueenID:     r.QueenID,
			BeekeeperID: r.BeekeeperID,
			Date:        fromMillis(r.DateMS),
			SI:          r.SI,
			BV:          r.BV,
			HoneyKg:     r.HoneyKg,
			EggDay:      r.EggDay,
		})
	}
	return out, nil
}

func measureQuery(base, keyColumn, key string, f MeasureFilter) (string, []any) {
	var where []string
	var args []any
	if key != "" {
		where = append(where, keyColumn+" = ?")
		args = append(args, key)
	}
	if f.BreederID != "" && keyColumn != "breeder_id" {
		where = append(where, "breeder_id = ?")
		args = append(args, f.BreederID)
	}
	if !f.Since.IsZero() {
		where = append(where, "date_ms >= ?")
		args = append(args, toMillis(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "date_ms <= ?")
		args = append(args, toMillis(f.Until))
	}
	query := base
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY date_ms ASC, seq ASC", args
}

func (s *sqlStore) SaveRule(ctx context.Context, rule model.AlertRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO alert_rules (id, rule_json, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET rule_json = excluded.rule_json, updated_ms = excluded.updated_ms`),
		rule.ID, string(data), toMillis(time.Now()))
	return err
}

func (s *sqlStore) GetRule(ctx context.Context, id string) (model.AlertRule, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT rule_json FROM alert_rules WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertRule{}, fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.AlertRule{}, err
	}
	var rule model.AlertRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return model.AlertRule{}, fmt.Errorf("decode rule %q: %w", id, err)
	}
	return rule, nil
}

func (s *sqlStore) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	var raws []string
	if err := s.db.SelectContext(ctx, &raws, `SELECT rule_json FROM alert_rules ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]model.AlertRule, 0, len(raws))
	for _, raw := range raws {
		var rule model.AlertRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *sqlStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM alert_rules WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	return nil
}

// SaveSignals ignores signals already stored for the same rule and instant.
func (s *sqlStore) SaveSignals(ctx context.Context, signals []model.AlertSignal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(
		`INSERT INTO alert_signals (rule_id, at_ms, scope, scope_id, metric, value, context_count, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (rule_id, at_ms) DO NOTHING`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, sig := range signals {
		if _, err := stmt.ExecContext(ctx,
			sig.RuleID,
			toMillis(sig.At),
			string(sig.Scope),
			sig.ScopeID,
			sig.Metric,
			sig.Value,
			sig.ContextCount,
			string(sig.Kind),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ListSignals(ctx context.Context, f SignalFilter) ([]model.AlertSignal, error) {
	query := `SELECT rule_id, at_ms, scope, scope_id, metric, value, context_count, kind FROM alert_signals`
	var where []string
	var args []any
	if f.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, f.RuleID)
	}
	if !f.Since.IsZero() {
		where = append(where, "at_ms >= ?")
		args = append(args, toMillis(f.Since))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at_ms DESC, seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	var rows []signalRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]model.AlertSignal, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AlertSignal{
			RuleID:       r.RuleID,
			At:           fromMillis(r.AtMS),
			Scope:        model.Scope(r.Scope),
			ScopeID:      r.ScopeID,
			Metric:       r.Metric,
			Value:        r.Value,
			ContextCount: r.ContextCount,
			Kind:         model.Kind(r.Kind),
		})
	}
	return out, nil
}

func present(v *float64) any {
	if !model.Present(v) {
		return nil
	}
	return *v
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
