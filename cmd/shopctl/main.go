package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var envFile string

// shop is the offline view of the stores. The server must not be running
// against the same directories while a command mutates them.
type shop struct {
	cfg      *config.Config
	registry *database.Registry
	backups  *services.BackupEngine
	archive  *services.ArchiveTransfer
	database *services.DatabaseService
}

// newShop loads the configuration and opens the live store. The caller must
// defer Close.
func newShop() (*shop, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	// there is no process to restart, reload instead
	cfg.RestorePolicy = config.RestoreReload

	registry, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening live store: %w", err)
	}
	backups := services.NewBackupEngine(cfg, registry, nil)
	return &shop{
		cfg:      cfg,
		registry: registry,
		backups:  backups,
		archive:  services.NewArchiveTransfer(backups),
		database: services.NewDatabaseService(cfg, registry),
	}, nil
}

func (s *shop) Close() error {
	return s.registry.Close()
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "shopctl",
	Short:        "Offline maintenance for the shop database",
	SilenceUsage: true,
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage snapshots",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.backups.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, info := range list {
			fmt.Printf("%-12s %3d files %10s  %s\n", info.VersionName, info.FileCount, info.SizeFormatted, info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot now",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.backups.CreateSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var backupInspectCmd = &cobra.Command{
	Use:   "inspect VERSION FILE",
	Short: "Print the newest records of a snapshot file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		file, err := s.backups.InspectSnapshotFile(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(file)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore VERSION",
	Short: "Restore a snapshot over the live store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.backups.RestoreSnapshot(args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune VERSION",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.backups.PruneSnapshot(args[0]); err != nil {
			return err
		}
		fmt.Printf("Version %s purged\n", args[0])
		return nil
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export VERSION",
	Short: "Write a snapshot as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		export, err := s.archive.Export(args[0])
		if err != nil {
			return err
		}
		defer export.Close()
		if out == "" {
			out = export.FileName()
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		n, err := export.WriteTo(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", out, n)
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import ARCHIVE",
	Short: "Restore the live store from a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return err
		}

		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.archive.Import(f, fi.Size())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the live store",
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live collection files",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		files, err := s.database.ListFiles()
		if err != nil {
			return err
		}
		fmt.Printf("Live store %s (%s)\n\n", s.cfg.StorageDir, s.registry.Engine().Name())
		for _, f := range files {
			fmt.Printf("%-20s %10s  %s\n", f.Name, f.Size, f.LastModified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var dbInspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print the newest records of a live file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		contents, err := s.database.InspectFile(filepath.Base(args[0]))
		if err != nil {
			return err
		}
		return printJSON(contents)
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Empty every non-protected collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to reset without --yes")
		}

		s, err := newShop()
		if err != nil {
			return err
		}
		defer s.Close()

		cleared, err := s.backups.FactoryReset()
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d collections\n", cleared)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "f", "", "Path to a .env file to load before reading the environment")
	rootCmd.SetContext(context.Background())

	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupInspectCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupCmd.AddCommand(backupExportCmd)
	backupExportCmd.Flags().StringP("output", "o", "", "Archive path (default <version>.zip)")
	backupCmd.AddCommand(backupImportCmd)

	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbInspectCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbResetCmd.Flags().Bool("yes", false, "Confirm the reset")
}
