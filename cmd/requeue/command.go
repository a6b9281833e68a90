package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/usecase"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

type intakeFinder interface {
	FindByID(ctx context.Context, id string) (*model.Intake, error)
}

type backends struct {
	finder     intakeFinder
	dispatcher usecase.Dispatcher
	closers    []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

type backendFactory func(ctx context.Context, cfg *config.Config, verify bool) (*backends, error)

func newRootCommand(connect backendFactory) *cobra.Command {
	var (
		leadID     string
		configPath string
		skipCheck  bool
	)

	cmd := &cobra.Command{
		Use:   "requeue <intake-id>",
		Short: "Re-enqueue reconciliation for an intake",
		Long: `Publishes a reconcile job for an existing intake to the JetStream job
subject. The running service picks it up and repeats upsert, search, document
attach and notification. Use --lead-id to pin the lead when the automatic
match was ambiguous.`,
		Example: `  requeue 3f0c9a52-5d7e-4c61-9a0e-8d1b2e9f4a10
  requeue 3f0c9a52-5d7e-4c61-9a0e-8d1b2e9f4a10 --lead-id 12345`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			b, err := connect(cmd.Context(), cfg, !skipCheck)
			if err != nil {
				return err
			}
			defer b.close()
			return requeue(cmd.Context(), cmd.OutOrStdout(), b, args[0], leadID)
		},
	}

	cmd.Flags().StringVar(&leadID, "lead-id", "", "Lead id to use instead of upserting/searching")
	cmd.Flags().StringVar(&configPath, "config", "", "Directory containing default.yaml")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Publish without checking that the intake exists")
	return cmd
}

func requeue(ctx context.Context, out io.Writer, b *backends, intakeID, leadID string) error {
	intakeID = strings.TrimSpace(intakeID)
	if intakeID == "" {
		return fmt.Errorf("intake id is empty")
	}

	if b.finder != nil {
		intake, err := b.finder.FindByID(ctx, intakeID)
		if err != nil {
			return fmt.Errorf("look up intake %s: %w", intakeID, err)
		}
		fmt.Fprintf(out, "intake %s: lead_status=%s lead_id=%q\n", intake.ID, intake.LeadStatus, intake.LeadIDValue())
	}

	job := model.ReconcileJob{
		IntakeID:       intakeID,
		LeadIDOverride: strings.TrimSpace(leadID),
		RequestedBy:    "cli",
		EnqueuedAt:     utils.Now(),
	}
	if err := b.dispatcher.Dispatch(ctx, job); err != nil {
		return err
	}

	fmt.Fprintf(out, "queued reconcile for %s", intakeID)
	if job.LeadIDOverride != "" {
		fmt.Fprintf(out, " with lead_id %s", job.LeadIDOverride)
	}
	fmt.Fprintln(out)
	return nil
}
