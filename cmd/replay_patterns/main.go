package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/app"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// replay_patterns recomputes relationship patterns. With -sync it aggregates in process;
// otherwise it queues pattern_aggregate jobs for the worker.
func main() {
	var rels idList
	var sync bool
	var dryRun bool
	flag.Var(&rels, "relationship", "relationship_id to replay (repeatable); default is every eligible relationship")
	flag.BoolVar(&sync, "sync", false, "aggregate in this process instead of enqueueing jobs")
	flag.BoolVar(&dryRun, "dry-run", false, "print the relationships without doing anything")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	var ids []uuid.UUID
	if len(rels) > 0 {
		for _, s := range rels {
			id, err := uuid.Parse(s)
			if err == nil && id != uuid.Nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			fmt.Println("no valid relationship_id values provided")
			return
		}
	} else {
		ids, err = application.Repos.Conflict.ListRelationshipIDsWithEnriched(dbc, application.Services.Policy.Aggregation.MinRecords)
		if err != nil {
			fmt.Printf("list relationships: %v\n", err)
			os.Exit(1)
		}
	}

	done := 0
	for _, id := range ids {
		if dryRun {
			fmt.Printf("[dry-run] replay relationship_id=%s\n", id)
			continue
		}
		if sync {
			set, err := application.Services.Aggregator.Aggregate(ctx, id)
			switch {
			case errors.Is(err, errs.ErrInsufficientHistory):
				fmt.Printf("skipped relationship_id=%s (insufficient history)\n", id)
				continue
			case err != nil:
				fmt.Printf("aggregate failed for %s: %v\n", id, err)
				continue
			}
			done++
			fmt.Printf("aggregated relationship_id=%s fights=%d\n", id, set.TotalFightsAnalyzed)
			continue
		}
		_, created, err := application.Services.JobService.EnqueuePatternAggregateIfNeeded(dbc, id, "replay")
		if err != nil {
			fmt.Printf("enqueue failed for %s: %v\n", id, err)
			continue
		}
		if created {
			done++
			fmt.Printf("enqueued pattern_aggregate for relationship_id=%s\n", id)
		}
	}

	fmt.Printf("done; processed=%d of %d\n", done, len(ids))
}
