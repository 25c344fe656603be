package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        request_id TEXT,
        input TEXT NOT NULL,
        approved INTEGER NOT NULL,
        label TEXT NOT NULL,
        probability REAL NOT NULL,
        flags TEXT,
        model_version TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        model_version TEXT,
        dataset TEXT,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        train_rows INTEGER,
        test_rows INTEGER,
        trained_at DATETIME
    );
    `

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store persists prediction history and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path in WAL mode.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(10)
		database.SetMaxIdleConns(5)
	}
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// PredictionRecord is one stored prediction.
type PredictionRecord struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id,omitempty"`
	Input        json.RawMessage `json:"input"`
	Approved     bool            `json:"approved"`
	Label        string          `json:"label"`
	Probability  float64         `json:"probability"`
	Flags        []string        `json:"flags"`
	ModelVersion string          `json:"model_version,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SavePrediction inserts rec; a repeated ID replaces the earlier row.
func (s *Store) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	if rec.ID == "" {
		return errors.New("prediction id required")
	}
	if len(rec.Input) == 0 {
		rec.Input = json.RawMessage("{}")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO predictions (
            id, request_id, input, approved, label, probability, flags, model_version, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, string(rec.Input), rec.Approved, rec.Label, rec.Probability,
		strings.Join(rec.Flags, ","), rec.ModelVersion, rec.CreatedAt.UTC())
	return err
}

// ListPredictions returns the most recent predictions, newest first.
func (s *Store) ListPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, input, approved, label, probability, flags, model_version, created_at
        FROM predictions
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var (
			rec       PredictionRecord
			requestID sql.NullString
			input     string
			flags     sql.NullString
			version   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &requestID, &input, &rec.Approved, &rec.Label, &rec.Probability,
			&flags, &version, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RequestID = requestID.String
		rec.Input = json.RawMessage(input)
		rec.Flags = []string{}
		if flags.String != "" {
			rec.Flags = strings.Split(flags.String, ",")
		}
		rec.ModelVersion = version.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TrainingLog is one training run.
type TrainingLog struct {
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	Dataset      string    `json:"dataset"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	F1           float64   `json:"f1"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	TrainedAt    time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, model_version, dataset, accuracy, precision, recall, f1,
            train_rows, test_rows, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.ModelVersion, entry.Dataset, entry.Accuracy, entry.Precision,
		entry.Recall, entry.F1, entry.TrainRows, entry.TestRows, entry.TrainedAt.UTC())
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, model_version, dataset, accuracy, precision, recall, f1,
               train_rows, test_rows, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var entry TrainingLog
		if err := rows.Scan(&entry.ModelName, &entry.ModelVersion, &entry.Dataset, &entry.Accuracy,
			&entry.Precision, &entry.Recall, &entry.F1, &entry.TrainRows, &entry.TestRows,
			&entry.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// LatestTrainingLog returns the newest training run or ErrNotFound.
func (s *Store) LatestTrainingLog(ctx context.Context) (*TrainingLog, error) {
	logs, err := s.LoadTrainingLog(ctx)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrNotFound
	}
	return &logs[0], nil
}
