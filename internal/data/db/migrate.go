package db

import (
	"fmt"

	types "github.com/yungbote/attune-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// =========================
		// Relationship scope
		// =========================
		&types.Relationship{},
		&types.PartnerProfile{},

		// =========================
		// Conflicts + enrichment
		// =========================
		&types.Conflict{},
		&types.TriggerPhrase{},
		&types.UnmetNeed{},
		&types.RepairAttempt{},
		&types.RepairAction{},

		// =========================
		// Derived caches
		// =========================
		&types.RelationshipPatterns{},
		&types.HealthSnapshot{},

		// =========================
		// Jobs / worker
		// =========================
		&types.JobRun{},
	); err != nil {
		return err
	}
	return EnsureInsightIndexes(db)
}

// EnsureInsightIndexes adds partial indexes gorm tags cannot express. The syntax is shared by Postgres and SQLite.
func EnsureInsightIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"idx_conflict_unresolved_by_date", `
			CREATE INDEX IF NOT EXISTS idx_conflict_unresolved_by_date
			ON conflict (relationship_id, created_at)
			WHERE is_resolved = false;
		`},
		{"idx_conflict_enriched_by_date", `
			CREATE INDEX IF NOT EXISTS idx_conflict_enriched_by_date
			ON conflict (relationship_id, created_at)
			WHERE enrichment_status = 'completed';
		`},
		{"idx_job_run_runnable", `
			CREATE INDEX IF NOT EXISTS idx_job_run_runnable
			ON job_run (status, created_at)
			WHERE status IN ('queued', 'failed', 'running');
		`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}
