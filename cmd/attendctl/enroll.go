package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
	"faceattend/internal/enrollment"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Register a student with a reference face image",
	Long: `Creates a student identity and stores the given JPG or PNG as its
reference image. Nothing is stored when no face is found in the image.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().String("user-id", "", "Login id of the new student")
	enrollCmd.Flags().String("name", "", "Display name")
	enrollCmd.Flags().String("password", "", "Initial password")
	_ = enrollCmd.MarkFlagRequired("user-id")
	_ = enrollCmd.MarkFlagRequired("name")
	_ = enrollCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return withApp(cmd.Context(), func(a *app.App) error {
		reg := enrollment.NewRegistrar(a.DB, a.Identities, a.Enroller)
		st, err := reg.Register(cmd.Context(), enrollment.NewStudent{
			UserID:   mustGetString(cmd, "user-id"),
			Name:     mustGetString(cmd, "name"),
			Password: mustGetString(cmd, "password"),
			Filename: filepath.Base(path),
			Image:    data,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s (%s) as %s\n", st.UserID, st.Name, st.ID)
		return nil
	})
}
