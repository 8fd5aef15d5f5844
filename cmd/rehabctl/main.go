package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AnshRaj112/rehab-backend/internal/app"
	"github.com/AnshRaj112/rehab-backend/internal/config"
	"github.com/AnshRaj112/rehab-backend/internal/database"
	"github.com/AnshRaj112/rehab-backend/internal/database/memstore"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/utils"
)

const staffPasswordEnv = "REHAB_STAFF_PASSWORD"

func main() {
	rootCmd := &cobra.Command{
		Use:          "rehabctl",
		Short:        "Administrative tasks for the rehab backend",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newStaffCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh ENCRYPTION_KEY and BLIND_INDEX_KEY pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := utils.GenerateKeyMaterial()
			if err != nil {
				return err
			}
			enc, idx := km.EncodedKeys()
			fmt.Fprintf(cmd.OutOrStdout(), "ENCRYPTION_KEY=%s\nBLIND_INDEX_KEY=%s\n", enc, idx)
			return nil
		},
	}
}

func newStaffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newStaffCreateCmd())
	return cmd
}

func newStaffCreateCmd() *cobra.Command {
	var (
		staffNumber string
		name        string
		email       string
		role        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a staff account",
		Long: `Create a staff account in the configured database. The password is read
from ` + staffPasswordEnv + ` or, when unset, from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return createStaff(cmd.Context(), cmd.OutOrStdout(), models.NewStaffAttrs{
				StaffNumber: staffNumber,
				Name:        name,
				Email:       email,
				Role:        models.StaffRole(role),
				Password:    password,
			})
		},
	}

	cmd.Flags().StringVar(&staffNumber, "staff-number", "", "Staff number used to sign in")
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email for password resets (optional)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleTherapist), "Role: therapist or admin")
	_ = cmd.MarkFlagRequired("staff-number")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if v := os.Getenv(staffPasswordEnv); v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password required: set %s or pipe it on stdin", staffPasswordEnv)
	}
	return line, nil
}

func createStaff(ctx context.Context, out io.Writer, attrs models.NewStaffAttrs) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	km, generated, err := cfg.KeyMaterial()
	if err != nil {
		return err
	}
	if generated {
		return errors.New("ENCRYPTION_KEY and BLIND_INDEX_KEY must be set to provision staff")
	}

	db, err := database.ConnectPostgres(ctx, cfg.PostgresURI)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	svc, err := app.NewAuthService(cfg, km, app.Backends{
		Store:       database.NewPostgresStore(db),
		Sessions:    memstore.NewSessionStore(time.Now),
		Assignments: database.NewPostgresAssignmentChecker(db),
		Notifier:    services.LogNotifier{},
	})
	if err != nil {
		return err
	}

	summary, err := svc.ProvisionStaff(ctx, attrs, models.RequestMeta{IPAddress: "127.0.0.1", UserAgent: "rehabctl"})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Created %s %s (%s)\n", summary.Role, summary.StaffNumber, summary.ID)
	return nil
}
