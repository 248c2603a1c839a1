package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbpkg "github.com/yungbote/attune-backend/internal/data/db"
	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/domain/relationship"
	"github.com/yungbote/attune-backend/internal/normalization"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the shared Postgres database when TEST_POSTGRES_DSN is set and a
// fresh in-memory SQLite database otherwise.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		pgOnce.Do(func() {
			pgDB, pgErr = gorm.Open(postgres.Open(dsn), gormConfig())
			if pgErr != nil {
				return
			}
			pgErr = dbpkg.AutoMigrateAll(pgDB)
		})
		if pgErr != nil {
			tb.Fatalf("failed to init test db: %v", pgErr)
		}
		return pgDB
	}

	name := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(name), gormConfig())
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := dbpkg.AutoMigrateAll(db); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// Tx scopes a test to a rolled-back transaction on Postgres. SQLite databases are
// already per-test, so the handle is returned as is.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// SeedRelationship creates a relationship and, when withProfiles is set, a profile for each partner.
func SeedRelationship(tb testing.TB, db *gorm.DB, withProfiles bool) *types.Relationship {
	tb.Helper()
	rel := &types.Relationship{PartnerAID: uuid.New(), PartnerBID: uuid.New()}
	if err := db.Create(rel).Error; err != nil {
		tb.Fatalf("seed relationship: %v", err)
	}
	if withProfiles {
		SeedProfile(tb, db, rel.ID, rel.PartnerAID)
		SeedProfile(tb, db, rel.ID, rel.PartnerBID)
	}
	return rel
}

func SeedProfile(tb testing.TB, db *gorm.DB, relationshipID, partnerID uuid.UUID) *types.PartnerProfile {
	tb.Helper()
	p := &types.PartnerProfile{
		RelationshipID:     relationshipID,
		PartnerID:          partnerID,
		StressTriggers:     relationship.EncodeStrings([]string{"being interrupted"}),
		SoothingMechanisms: relationship.EncodeStrings([]string{"a short walk"}),
		ApologyPreferences: relationship.EncodeStrings([]string{"acknowledge impact"}),
		PostConflictNeed:   "space",
		RepairGestures:     relationship.EncodeStrings([]string{"making tea"}),
		EscalationTriggers: relationship.EncodeStrings([]string{"raised voice"}),
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// ConflictSeed describes a conflict row for fixtures; zero values pick sensible defaults.
type ConflictSeed struct {
	CreatedAt  time.Time
	Topic      string
	Resentment int
	Resolved   bool
	ResolvedAt *time.Time
	Status     string
	ChainID    *uuid.UUID
	ParentID   *uuid.UUID
	Turns      []types.TranscriptTurn
}

func SeedConflict(tb testing.TB, db *gorm.DB, rel *types.Relationship, s ConflictSeed) *types.Conflict {
	tb.Helper()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = conflict.EnrichmentCompleted
	}
	if s.Turns == nil {
		s.Turns = DefaultTurns(rel, s.CreatedAt)
	}
	raw, err := conflict.EncodeTurns(s.Turns)
	if err != nil {
		tb.Fatalf("encode turns: %v", err)
	}
	c := &types.Conflict{
		RelationshipID:   rel.ID,
		Transcript:       raw,
		TurnCount:        len(s.Turns),
		Topic:            s.Topic,
		ResentmentLevel:  s.Resentment,
		IsResolved:       s.Resolved,
		ResolvedAt:       s.ResolvedAt,
		EnrichmentStatus: s.Status,
		ConflictChainID:  s.ChainID,
		ParentConflictID: s.ParentID,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.CreatedAt.UTC(),
	}
	if s.Topic != "" {
		c.TopicSource = conflict.TopicSourceInferred
		c.TopicNorm = normalization.TopicKey(s.Topic)
	}
	if s.Resolved && c.ResolvedAt == nil {
		at := s.CreatedAt.Add(time.Hour).UTC()
		c.ResolvedAt = &at
	}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed conflict: %v", err)
	}
	return c
}

// DefaultTurns is a short two-speaker exchange.
func DefaultTurns(rel *types.Relationship, at time.Time) []types.TranscriptTurn {
	return []types.TranscriptTurn{
		{SpeakerID: rel.PartnerAID, Text: "You never do the dishes.", Timestamp: at},
		{SpeakerID: rel.PartnerBID, Text: "That's not fair, I did them yesterday.", Timestamp: at.Add(10 * time.Second)},
		{SpeakerID: rel.PartnerAID, Text: "Whatever, forget it.", Timestamp: at.Add(20 * time.Second)},
		{SpeakerID: rel.PartnerBID, Text: "I'm sorry, can we talk about it?", Timestamp: at.Add(30 * time.Second)},
	}
}
