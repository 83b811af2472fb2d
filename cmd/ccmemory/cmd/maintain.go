package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/decay"
	"github.com/ccmemory/ccmemory/internal/index"
)

// newMaintainCmd runs the decay/promotion/backfill sweep and the index
// consistency sweep once (§4.3 decay, §9 promotion policy and
// pending-vector backfill, SPEC_FULL §3 index consistency). Grounded on
// the teacher's `compact` command: a one-shot maintenance pass over the
// store, invoked by cron or manually rather than kept resident.
func newMaintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one decay/promotion/backfill/consistency sweep over the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("app init: %w", err)
			}
			defer a.Close()
			ctx := cmd.Context()

			sched := decay.New(a.db)
			sched.SetEmbedder(a.embed, a.memVectors, a.docVectors)

			res, err := sched.RunOnce(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("maintenance sweep: %w", err)
			}

			checker := index.NewChecker(a.db, a.docVectors)
			check, err := checker.Check(ctx)
			if err != nil {
				return fmt.Errorf("consistency check: %w", err)
			}
			if err := checker.Repair(ctx, check); err != nil {
				return fmt.Errorf("consistency repair: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "decayed=%d promoted=%d backfilled=%d backfill_failed=%d checked=%d orphan_vectors=%d missing_vectors=%d\n",
				res.Decayed, res.Promoted, res.Backfilled, res.BackfillFailed,
				check.Checked, len(check.OrphanVectors), len(check.MissingVectors))
			return nil
		},
	}
}
