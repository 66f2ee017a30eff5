package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/imaging"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a student's attendance for one month",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Compare an image with a student's enrolled face",
	Long: `Runs the same verification as the mark endpoint without recording
attendance, and prints the outcome and embedding distance.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	now := time.Now()
	reportCmd.Flags().String("user-id", "", "Login id of the student")
	reportCmd.Flags().Int("year", now.Year(), "Year")
	reportCmd.Flags().Int("month", int(now.Month()), "Month (1-12)")
	_ = reportCmd.MarkFlagRequired("user-id")

	verifyCmd.Flags().String("user-id", "", "Login id of the student")
	_ = verifyCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(reportCmd, verifyCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app.App) error {
		st, err := a.Identities.GetByUserID(ctx, mustGetString(cmd, "user-id"))
		if err != nil {
			return err
		}
		report, err := a.Ledger.MonthlyReport(ctx, st.ID, mustGetInt(cmd, "year"), mustGetInt(cmd, "month"))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s) %04d-%02d: %d day(s) present\n", st.Name, st.UserID, report.Year, report.Month, len(report.PresentDays))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tTIME")
		for _, r := range report.Records {
			fmt.Fprintf(w, "%s\t%s\n", r.Date, r.Time)
		}
		return w.Flush()
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if _, _, err := imaging.Decode(data); err != nil {
		return err
	}
	ctx := cmd.Context()
	return withApp(ctx, func(a *app.App) error {
		st, err := a.Identities.GetByUserID(ctx, mustGetString(cmd, "user-id"))
		if err != nil {
			return err
		}
		d, err := a.Engine.VerifyIdentity(ctx, st, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "outcome=%s distance=%.4f tolerance=%.2f\n", d.Outcome, d.Distance, a.Engine.Tolerance())
		return nil
	})
}
