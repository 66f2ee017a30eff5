package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/config"
	"faceattend/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the face attendance service",
	Long: `attendctl runs maintenance tasks against the attendance database:
migrations, seeding the default admin, enrolling students from image files,
checking a capture against an enrolled face and printing monthly reports.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		level := "warn"
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		logging.Setup(logging.Options{Level: level})
	}
}

// withApp loads config, opens the app and closes it after fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.Open(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		logrus.Panicf("flag error for --%s: %v", name, err)
	}
	return val
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		logrus.Panicf("flag error for --%s: %v", name, err)
	}
	return val
}
