package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"stock-ledger/core/ledger"
	"stock-ledger/feature/integrity"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the integrity command
	fixIntegrity    bool
	dryRunIntegrity bool
	yesConfirm      bool
)

// integrityCmd reports ledger integrity and optionally repairs it.
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check the ledger for diverged pairs and broken links",
	Long: `Scans both registries for mirror pairs whose quantities diverged, broken links,
intermediates without a linked item and recipes that reference missing entries.

Examples:
  # Report only
  integrity

  # Resync diverged pairs from the raw side (with interactive confirmation)
  integrity --fix

  # Resync with auto-confirm (non-interactive)
  integrity --fix --yes`,
	RunE: runIntegrity,
}

// schemaCmd checks the ledger tables.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check that the database has every ledger column",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		l := rt.logger

		svc := integrity.NewService(rt.stock.Store(), rt.stock.Ledger(), rt.db, 0, l)
		report, err := svc.CheckSchema()
		if err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}

		if report.Matched {
			l.Info("Ledger schema matches the models.", zap.Int("tables", len(report.Tables)))
			return nil
		}
		l.Warn("Ledger schema mismatches found")
		for table, tblReport := range report.Tables {
			if tblReport.Status != "ok" {
				l.Warn("Missing Columns", zap.String("table", table), zap.Strings("columns", tblReport.MissingColumns))
			}
		}
		for _, e := range report.Errors {
			l.Error("Inspection Error", zap.String("error", e))
		}
		return nil
	},
}

func init() {
	integrityCmd.AddCommand(schemaCmd)

	integrityCmd.Flags().BoolVar(&fixIntegrity, "fix", false, "Resync diverged pairs and clear same-registry links")
	integrityCmd.Flags().BoolVar(&dryRunIntegrity, "dry-run", false, "Force dry-run (no mutations even with --yes)")
	integrityCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm repairs (non-interactive)")

	RootCmd.AddCommand(integrityCmd)
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	startTime := time.Now()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	l := rt.logger

	svc := integrity.NewService(rt.stock.Store(), rt.stock.Ledger(), rt.db, 0, l)

	// Step 1: Report (always runs)
	l.Info("Scanning ledger...")
	report, err := svc.Report(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to scan ledger: %w", err)
	}
	plan := integrity.BuildPlan(report)

	// Step 2: Print report
	printIntegrityReport(l, report, plan, time.Since(startTime))

	// Step 3: Check if repairs are requested
	if !fixIntegrity {
		if len(plan.Actions) > 0 {
			l.Info("Run with --fix to apply the planned repairs.")
		}
		return nil
	}

	// Step 4: Apply (if confirmed)
	if dryRunIntegrity {
		l.Info("Dry-run mode: No changes were made.")
		return nil
	}
	if len(plan.Actions) == 0 {
		l.Info("No repairs required.")
		return nil
	}
	if !confirmRepairs() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	actor := ledger.Actor{UserName: "integrity-cli"}
	res, err := svc.ApplyFixes(ctx, plan, integrity.Options{Confirmed: true}, actor)
	if err != nil {
		return fmt.Errorf("repairs stopped after %d of %d actions: %w", res.Executed, res.Planned, err)
	}
	l.Info("Successfully executed repairs", zap.Int("count", res.Executed))
	return nil
}

// printIntegrityReport prints a formatted integrity report using logger.
func printIntegrityReport(l *zap.Logger, report *integrity.Report, plan *integrity.Plan, elapsed time.Duration) {
	l.Info("Integrity report",
		zap.Int("entries", report.Entries),
		zap.Int("recipes", report.Recipes),
		zap.Int("pairs", report.Links.Pairs),
		zap.Int("diverged", len(report.Links.Diverged)),
		zap.Int("broken_links", len(report.Links.Broken)),
		zap.Int("unlinked_intermediates", len(report.Links.UnlinkedIntermediates)),
		zap.Int("recipe_issues", len(report.RecipeIssues)),
		zap.Duration("execution_time", elapsed),
	)

	// Show sample of actions (max 5 for logger)
	maxShow := 5
	if len(plan.Actions) < maxShow {
		maxShow = len(plan.Actions)
	}
	for i := 0; i < maxShow; i++ {
		action := plan.Actions[i]
		l.Info("Planned repair",
			zap.String("type", string(action.Type)),
			zap.String("target", action.Target.String()),
			zap.String("reason", action.Reason),
		)
	}
	if len(plan.Actions) > maxShow {
		l.Info("Additional repairs not shown", zap.Int("count", len(plan.Actions)-maxShow))
	}

	for _, m := range plan.Manual {
		l.Warn("Needs manual attention", zap.String("issue", m))
	}
}

// confirmRepairs prompts the user for confirmation or uses --yes flag.
func confirmRepairs() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm repairs: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
