package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/quota"
)

// Setting keys consumed by the reconciliation engine.
const (
	KeyWeekStartDay        = "week_start_day"
	KeyWeeklyPenaltyPct    = "weekly_penalty_percent"
	defaultWeekStartDay    = "monday"
	defaultWeeklyPenaltyPc = "0.5"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) getOrDefault(key, fallback string) string {
	value, err := s.Get(key)
	if err != nil {
		return fallback
	}
	return value
}

// WeekStartDay returns the configured first day of the week.
func (s *SettingsStore) WeekStartDay() (time.Weekday, error) {
	name := s.getOrDefault(KeyWeekStartDay, defaultWeekStartDay)
	day, err := quota.ParseWeekStartDay(name)
	if err != nil {
		return time.Monday, fmt.Errorf("week start setting: %w", err)
	}
	return day, nil
}

// WeeklyPenaltyPercent returns the family-level fraction of earn value
// charged per missed weekly completion.
func (s *SettingsStore) WeeklyPenaltyPercent() (decimal.Decimal, error) {
	raw := s.getOrDefault(KeyWeeklyPenaltyPct, defaultWeeklyPenaltyPc)
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("penalty percent setting %q: %w", raw, err)
	}
	return pct, nil
}
