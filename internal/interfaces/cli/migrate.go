package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Migrator applies the embedded schema migrations to a database URL.
type Migrator interface {
	Up(dbURL string) error
	Down(dbURL string, steps int) error
	Status(dbURL string) (version uint, dirty bool, err error)
	Force(dbURL string, version int) error
}

type postgresMigrator struct{}

func (postgresMigrator) Up(dbURL string) error              { return postgres.RunMigrations(dbURL) }
func (postgresMigrator) Down(dbURL string, steps int) error { return postgres.RollbackMigration(dbURL, steps) }
func (postgresMigrator) Status(dbURL string) (uint, bool, error) {
	return postgres.MigrationStatus(dbURL)
}
func (postgresMigrator) Force(dbURL string, version int) error {
	return postgres.ForceMigrationVersion(dbURL, version)
}

// NewMigrateCmd creates the migrate command group against PostgreSQL.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(postgresMigrator{})
}

func newMigrateCmd(m Migrator) *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default: built from the database config section)")

	resolve := func(cmd *cobra.Command) (string, error) {
		if dbURL != "" {
			return dbURL, nil
		}
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return "", err
		}
		return cliCtx.Config.Database.DSN(), nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			if err := m.Up(url); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate up")
			}
			PrintSuccess(cmd, "schema is up to date")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			if err := m.Down(url, steps); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate down")
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := m.Status(url)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate status")
			}
			return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Newf(errors.ErrCodeValidation, "invalid version %q", args[0])
			}
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			if err := m.Force(url, version); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate force")
			}
			PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
			return nil
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) TableHeaders() []string { return []string{"Version", "Dirty"} }

func (s migrationStatus) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}
