// Package store persists call records with gorm. Writes are upserts keyed
// on call_id; rows past expires_at are invisible to reads and removed by
// the sweeper.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

var ErrNotFound = errors.New("call not found")

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// callRow is the persisted shape of types.CallRecord.
type callRow struct {
	CallID     string    `gorm:"column:call_id;primaryKey;size:64"`
	CustomerID string    `gorm:"column:customer_id;size:128"`
	Transcript string    `gorm:"column:transcript;type:text"`
	Sentiment  string    `gorm:"column:sentiment;size:16;index"`
	Intents    []string  `gorm:"column:intents;type:text;serializer:json"`
	Summary    string    `gorm:"column:summary;type:text"`
	Converted  bool      `gorm:"column:converted"`
	SalesCall  bool      `gorm:"column:sales_call"`
	CreatedAt  time.Time `gorm:"column:created_at;index;autoCreateTime:false"`
	ExpiresAt  time.Time `gorm:"column:expires_at;index"`
}

func (callRow) TableName() string { return "calls" }

func toRow(r types.CallRecord) callRow {
	return callRow{
		CallID:     r.CallID,
		CustomerID: r.CustomerID,
		Transcript: r.Transcript,
		Sentiment:  string(r.Sentiment),
		Intents:    types.DedupeIntents(r.Intents),
		Summary:    r.Summary,
		Converted:  r.Converted,
		SalesCall:  r.SalesCall,
		CreatedAt:  r.CreatedAt.UTC(),
		ExpiresAt:  r.ExpiresAt.UTC(),
	}
}

func (c callRow) record() types.CallRecord {
	intents := c.Intents
	if intents == nil {
		intents = []string{}
	}
	return types.CallRecord{
		CallID:     c.CallID,
		CustomerID: c.CustomerID,
		Transcript: c.Transcript,
		Sentiment:  types.Sentiment(c.Sentiment),
		Intents:    intents,
		Summary:    c.Summary,
		Converted:  c.Converted,
		SalesCall:  c.SalesCall,
		CreatedAt:  c.CreatedAt.UTC(),
		ExpiresAt:  c.ExpiresAt.UTC(),
	}
}

type Options struct {
	Dialect string
	DSN     string
	Log     *logger.Logger
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
	log *logger.Logger
}

// Open connects and migrates the calls table.
func Open(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(opts.Dialect) {
	case "", DialectSQLite:
		dialector = sqlite.Open(opts.DSN)
	case DialectPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", opts.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Dialect, err)
	}
	if dialector.Name() == DialectSQLite {
		// sqlite allows one writer; a single connection also keeps
		// in-memory databases alive for the life of the store
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts.Log)
}

// New wraps an existing connection, migrating the schema.
func New(db *gorm.DB, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	if err := db.AutoMigrate(&callRow{}); err != nil {
		return nil, fmt.Errorf("migrate calls: %w", err)
	}
	return &Store{db: db, now: time.Now, log: log.Component("store")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert inserts the record or replaces every column of the existing row
// with the same call_id. Intents are stored as a set.
func (s *Store) Upsert(ctx context.Context, rec types.CallRecord) error {
	if rec.CallID == "" {
		return errors.New("upsert: empty call_id")
	}
	row := toRow(rec)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.CallID, err)
	}
	return nil
}

func (s *Store) live(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&callRow{}).Where("expires_at > ?", s.now().UTC())
}

func (s *Store) Get(ctx context.Context, callID string) (types.CallRecord, error) {
	var row callRow
	err := s.live(ctx).Where("call_id = ?", callID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.CallRecord{}, ErrNotFound
	}
	if err != nil {
		return types.CallRecord{}, fmt.Errorf("get %s: %w", callID, err)
	}
	return row.record(), nil
}

// Page bounds a listing. A zero Since means all time; Limit <= 0 means
// no limit.
type Page struct {
	Since time.Time
	Limit int
	Skip  int
}

// List returns live records newest first.
func (s *Store) List(ctx context.Context, p Page) ([]types.CallRecord, error) {
	q := s.since(s.live(ctx), p.Since).Order("created_at DESC").Order("call_id DESC")
	if p.Skip > 0 {
		q = q.Offset(p.Skip)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	var rows []callRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return records(rows), nil
}

// ListByTopic returns live records since the given time whose intent set
// contains topic.
func (s *Store) ListByTopic(ctx context.Context, topic string, since time.Time) ([]types.CallRecord, error) {
	var rows []callRow
	err := s.since(s.live(ctx), since).
		Where("intents LIKE ?", "%"+topic+"%").
		Order("created_at DESC").Order("call_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list topic %s: %w", topic, err)
	}
	// LIKE over the JSON column is only a prefilter
	out := make([]types.CallRecord, 0, len(rows))
	for _, r := range rows {
		for _, in := range types.DedupeIntents(r.Intents) {
			if in == topic {
				out = append(out, r.record())
				break
			}
		}
	}
	return out, nil
}

// Counts holds the totals the aggregation engine needs.
type Counts struct {
	Total     int64
	Positive  int64
	Converted int64
}

func (s *Store) Count(ctx context.Context, since time.Time) (Counts, error) {
	var c Counts
	if err := s.since(s.live(ctx), since).Count(&c.Total).Error; err != nil {
		return c, fmt.Errorf("count calls: %w", err)
	}
	if err := s.since(s.live(ctx), since).Where("sentiment = ?", string(types.SentimentPositive)).Count(&c.Positive).Error; err != nil {
		return c, fmt.Errorf("count positive: %w", err)
	}
	if err := s.since(s.live(ctx), since).Where("converted = ?", true).Count(&c.Converted).Error; err != nil {
		return c, fmt.Errorf("count converted: %w", err)
	}
	return c, nil
}

// IntentSets returns the stored intents of every live record since the
// given time, one slice per call, exactly as stored.
func (s *Store) IntentSets(ctx context.Context, since time.Time) ([][]string, error) {
	var rows []callRow
	if err := s.since(s.live(ctx), since).Select("call_id", "intents").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("intent sets: %w", err)
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Intents)
	}
	return out, nil
}

// SweepExpired deletes rows whose expires_at is at or before now.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&callRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) since(q *gorm.DB, since time.Time) *gorm.DB {
	if since.IsZero() {
		return q
	}
	return q.Where("created_at >= ?", since.UTC())
}

func records(rows []callRow) []types.CallRecord {
	out := make([]types.CallRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out
}
