package recorder

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// Migrations holds the goose migration files.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the files.
const MigrationsDir = "migrations"

var gooseMu sync.Mutex

// SQLiteRecorder persists alert history, subscribers, evaluations and
// deliveries to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and applies
// pending migrations.
func NewSQLiteRecorder(ctx context.Context, dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	l := logger.GetLogger()
	l.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return &SQLiteRecorder{db: db}, nil
}

// Migrate applies all pending migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, MigrationsDir)
}

func (r *SQLiteRecorder) RecordEvaluation(ctx context.Context, e *Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := e.Classification
	_, err := r.db.ExecContext(ctx, `INSERT INTO evaluations
		(timestamp, wallet, wallet_type, behavior, risk_level, risk_score, confidence, candidates, admitted)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		unixMilli(e.Timestamp), e.Wallet,
		string(c.WalletType), string(c.Behavior), string(c.RiskLevel),
		c.RiskScore, c.Confidence, e.Candidates, e.Admitted,
	)
	return err
}

func (r *SQLiteRecorder) RecordDelivery(ctx context.Context, d *Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO deliveries
		(timestamp, alert_id, alert_type, subject, chat_id, ok, error)
		VALUES (?,?,?,?,?,?,?)`,
		unixMilli(d.Timestamp), d.AlertID, string(d.Key.Type), d.Key.Subject,
		d.ChatID, d.OK, d.Error,
	)
	return err
}

func (r *SQLiteRecorder) CountDeliveries(ctx context.Context, chatID int64, since time.Time) (map[model.AlertType]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT alert_type, COUNT(*) FROM deliveries
		WHERE chat_id = ? AND ok = 1 AND timestamp >= ?
		GROUP BY alert_type`, chatID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	out := make(map[model.AlertType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		out[model.AlertType(t)] = n
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) RecentDeliveries(ctx context.Context, since time.Time) (map[int64][]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id, timestamp FROM deliveries
		WHERE timestamp >= ? ORDER BY timestamp`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]time.Time)
	for rows.Next() {
		var chatID, ts int64
		if err := rows.Scan(&chatID, &ts); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out[chatID] = append(out[chatID], time.UnixMilli(ts).UTC())
	}
	return out, rows.Err()
}

// SaveAlertRecord upserts rec keyed by its AlertKey.
func (r *SQLiteRecorder) SaveAlertRecord(ctx context.Context, rec *model.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conditions, err := json.Marshal(rec.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	var last sql.NullInt64
	if rec.LastTriggered != nil {
		last = sql.NullInt64{Int64: rec.LastTriggered.UnixMilli(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO alert_history
		(alert_key, id, alert_type, subject, severity, description, conditions,
		 created_at, last_triggered, trigger_count, cooldown_seconds, active)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(alert_key) DO UPDATE SET
			id = excluded.id,
			severity = excluded.severity,
			description = excluded.description,
			conditions = excluded.conditions,
			last_triggered = excluded.last_triggered,
			trigger_count = excluded.trigger_count,
			cooldown_seconds = excluded.cooldown_seconds,
			active = excluded.active`,
		rec.Key.String(), rec.ID, string(rec.Key.Type), rec.Key.Subject,
		string(rec.Severity), rec.Description, string(conditions),
		unixMilli(rec.CreatedAt), last, rec.TriggerCount,
		int64(rec.CooldownPeriod/time.Second), rec.Active,
	)
	return err
}

// LoadAlertRecords returns every stored alert record.
func (r *SQLiteRecorder) LoadAlertRecords(ctx context.Context) ([]*model.AlertRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, alert_type, subject, severity, description, conditions,
		created_at, last_triggered, trigger_count, cooldown_seconds, active
		FROM alert_history`)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var out []*model.AlertRecord
	for rows.Next() {
		var (
			rec        model.AlertRecord
			typ        string
			severity   string
			desc       sql.NullString
			conditions sql.NullString
			created    int64
			last       sql.NullInt64
			cooldown   int64
		)
		if err := rows.Scan(&rec.ID, &typ, &rec.Key.Subject, &severity, &desc, &conditions,
			&created, &last, &rec.TriggerCount, &cooldown, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan alert record: %w", err)
		}
		rec.Key.Type = model.AlertType(typ)
		rec.Severity = model.Severity(severity)
		rec.Description = desc.String
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.CooldownPeriod = time.Duration(cooldown) * time.Second
		if last.Valid {
			t := time.UnixMilli(last.Int64).UTC()
			rec.LastTriggered = &t
		}
		if conditions.Valid && conditions.String != "" && conditions.String != "null" {
			if err := json.Unmarshal([]byte(conditions.String), &rec.Conditions); err != nil {
				return nil, fmt.Errorf("decode conditions of %s: %w", rec.Key, err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SaveSubscriber replaces the stored state of s.
func (r *SQLiteRecorder) SaveSubscriber(ctx context.Context, s *model.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO subscribers (chat_id, created_at) VALUES (?,?)
		ON CONFLICT(chat_id) DO NOTHING`, s.ChatID, unixMilli(s.CreatedAt)); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriber_wallets WHERE chat_id = ?`, s.ChatID); err != nil {
		return fmt.Errorf("clear wallets: %w", err)
	}
	for i, w := range s.Wallets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO subscriber_wallets (chat_id, address, position) VALUES (?,?,?)`,
			s.ChatID, w, i); err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriber_preferences WHERE chat_id = ?`, s.ChatID); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	for t, enabled := range s.Preferences {
		if _, err := tx.ExecContext(ctx, `INSERT INTO subscriber_preferences (chat_id, alert_type, enabled) VALUES (?,?,?)`,
			s.ChatID, string(t), enabled); err != nil {
			return fmt.Errorf("insert preference: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSubscribers returns every stored subscriber with its wallets and
// preferences.
func (r *SQLiteRecorder) LoadSubscribers(ctx context.Context) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id, created_at FROM subscribers ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	byChat := make(map[int64]*model.Subscriber)
	var out []*model.Subscriber
	for rows.Next() {
		var s model.Subscriber
		var created int64
		if err := rows.Scan(&s.ChatID, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		byChat[s.ChatID] = &s
		out = append(out, &s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wrows, err := r.db.QueryContext(ctx, `SELECT chat_id, address FROM subscriber_wallets ORDER BY chat_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	for wrows.Next() {
		var chatID int64
		var addr string
		if err := wrows.Scan(&chatID, &addr); err != nil {
			wrows.Close()
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		if s, ok := byChat[chatID]; ok {
			s.Wallets = append(s.Wallets, addr)
		}
	}
	wrows.Close()
	if err := wrows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.db.QueryContext(ctx, `SELECT chat_id, alert_type, enabled FROM subscriber_preferences`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var chatID int64
		var t string
		var enabled bool
		if err := prows.Scan(&chatID, &t, &enabled); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		s, ok := byChat[chatID]
		if !ok {
			continue
		}
		if s.Preferences == nil {
			s.Preferences = make(map[model.AlertType]bool)
		}
		s.Preferences[model.AlertType(t)] = enabled
	}
	return out, prows.Err()
}

func (r *SQLiteRecorder) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRecorder) Close() error {
	l := logger.GetLogger()
	l.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
