package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mavenhub/registry/configuration"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/datastore"
	"github.com/mavenhub/registry/registry/handlers"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var showVersion bool

var (
	cleanupRepo   string
	cleanupPeriod time.Duration
	importForce   bool
)

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(CleanupCmd)
	RootCmd.AddCommand(MetadataCmd)
	RootCmd.AddCommand(DBCmd)
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")

	CleanupCmd.Flags().StringVarP(&cleanupRepo, "repo", "r", "", "clean a single cache repository instead of every configured policy")
	CleanupCmd.Flags().DurationVarP(&cleanupPeriod, "period", "p", 0, "remove items not downloaded within this period, required with --repo")

	MetadataCmd.AddCommand(RecalculateCmd)

	DBCmd.AddCommand(MigrateCmd)
	DBCmd.AddCommand(ImportCmd)
	MigrateCmd.AddCommand(MigrateUpCmd)
	MigrateCmd.AddCommand(MigrateDownCmd)
	MigrateCmd.AddCommand(MigrateVersionCmd)

	ImportCmd.Flags().BoolVarP(&importForce, "force", "f", false, "refresh repositories which already hold indexed items")
}

// RootCmd is the main command for the 'registry' binary.
var RootCmd = &cobra.Command{
	Use:   "registry",
	Short: "`registry`",
	Long:  "`registry`",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}
		cmd.Usage()
	},
}

// newOfflineApp builds an application for one-off commands. Background agents
// stay off whatever the configuration says.
func newOfflineApp(cmd *cobra.Command, args []string) (context.Context, *handlers.App) {
	config, err := resolveConfiguration(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		cmd.Usage()
		os.Exit(1)
	}
	config.Cleanup.Enabled = false
	config.Maintenance.UploadPurging.Enabled = false

	ctx, err := configureLogging(dcontext.Background(), config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to configure logging with config: %s", err)
		os.Exit(1)
	}

	app, err := handlers.NewApp(ctx, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to construct application: %v", err)
		os.Exit(1)
	}

	return ctx, app
}

// CleanupCmd is the cobra command that corresponds to the cleanup subcommand.
var CleanupCmd = &cobra.Command{
	Use:   "cleanup <config>",
	Short: "`cleanup` removes cached items which were not downloaded recently",
	Long:  "`cleanup` removes cached items which were not downloaded recently. Requires the index database.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, app := newOfflineApp(cmd, args)
		defer app.Shutdown()

		if app.Cleaner() == nil {
			fmt.Fprintln(os.Stderr, "cleanup requires the index database to be enabled")
			os.Exit(1)
		}

		policies, err := cleanupPolicies(app.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			cmd.Usage()
			os.Exit(1)
		}

		var failed bool
		for _, p := range policies {
			report, err := app.Cleaner().Clean(ctx, p.Repository, p.UnusedPeriod)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to clean %s: %v\n", p.Repository, err)
				failed = true
				continue
			}
			fmt.Printf("%s: %d candidates, %d deleted, %d missing, %d failed\n",
				report.Repository, report.Candidates, report.Deleted, report.Missing, report.Failed)
			if report.Errors != nil {
				dcontext.GetLogger(ctx).WithError(report.Errors).Warn("some items could not be deleted")
			}
		}
		if failed {
			os.Exit(1)
		}
	},
}

func cleanupPolicies(config *configuration.Configuration) ([]configuration.CleanupPolicy, error) {
	if cleanupRepo == "" {
		if cleanupPeriod != 0 {
			return nil, errors.New("--period requires --repo")
		}
		if len(config.Cleanup.Policies) == 0 {
			return nil, errors.New("no cleanup policy configured")
		}
		return config.Cleanup.Policies, nil
	}

	if cleanupPeriod > 0 {
		return []configuration.CleanupPolicy{{Repository: cleanupRepo, UnusedPeriod: cleanupPeriod}}, nil
	}
	for _, p := range config.Cleanup.Policies {
		if p.Repository == cleanupRepo {
			return []configuration.CleanupPolicy{p}, nil
		}
	}
	return nil, fmt.Errorf("no cleanup policy configured for %s, use --period", cleanupRepo)
}

// MetadataCmd is the root of the `metadata` command.
var MetadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manages maven metadata documents",
	Long:  "Manages maven metadata documents",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// RecalculateCmd rebuilds the metadata documents below a folder.
var RecalculateCmd = &cobra.Command{
	Use:   "recalculate <config> <repo> [path]",
	Short: "Rebuild the maven-metadata.xml documents below a folder",
	Long:  "Rebuild the maven-metadata.xml documents below a folder of a local or cache repository",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, app := newOfflineApp(cmd, args[:1])
		defer app.Shutdown()

		var p string
		if len(args) > 2 {
			p = args[2]
		}
		root := repository.NewRepoPath(args[1], p)

		repo, ok := app.Registry().Repository(root.RepoKey)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown repository %s\n", root.RepoKey)
			os.Exit(1)
		}
		if k := repo.Kind(); k != repository.KindLocal && k != repository.KindCache {
			fmt.Fprintf(os.Stderr, "%s is a %s repository\n", root.RepoKey, k)
			os.Exit(1)
		}

		report := app.Calculator().RecalculateTree(ctx, root)
		fmt.Printf("%s: %d folders, %d updated, %d removed\n", root, report.Folders, report.Updated, report.Removed)
		if report.Errors != nil {
			fmt.Fprintf(os.Stderr, "recalculation errors: %v\n", report.Errors)
			os.Exit(1)
		}
	},
}

// DBCmd is the root of the `database` command.
var DBCmd = &cobra.Command{
	Use:   "database",
	Short: "Manages the item index database",
	Long:  "Manages the item index database",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// MigrateCmd is the `migrate` sub-command of `database` that manages schema
// migrations.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage migrations",
	Long:  "Manage migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

func openDB(cmd *cobra.Command, args []string) *datastore.DB {
	config, err := resolveConfiguration(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		cmd.Usage()
		os.Exit(1)
	}

	db, err := datastore.OpenFromConfig(config, logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to construct database connection: %v", err)
		os.Exit(1)
	}

	return db
}

// MigrateUpCmd applies pending migrations.
var MigrateUpCmd = &cobra.Command{
	Use:   "up <config>",
	Short: "Apply pending migrations",
	Long:  "Apply pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		db := openDB(cmd, args)
		defer db.Close()

		n, err := db.MigrateUp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to run database migrations: %v", err)
			os.Exit(1)
		}
		fmt.Printf("OK: applied %d migrations\n", n)
	},
}

// MigrateDownCmd reverts applied migrations.
var MigrateDownCmd = &cobra.Command{
	Use:   "down <config>",
	Short: "Revert applied migrations",
	Long:  "Revert applied migrations",
	Run: func(cmd *cobra.Command, args []string) {
		db := openDB(cmd, args)
		defer db.Close()

		n, err := db.MigrateDown()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to revert database migrations: %v", err)
			os.Exit(1)
		}
		fmt.Printf("OK: reverted %d migrations\n", n)
	},
}

// MigrateVersionCmd shows the current migration version.
var MigrateVersionCmd = &cobra.Command{
	Use:   "version <config>",
	Short: "Show current migration version",
	Long:  "Show current migration version",
	Run: func(cmd *cobra.Command, args []string) {
		db := openDB(cmd, args)
		defer db.Close()

		v, err := db.MigrateVersion()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to detect database version: %v", err)
			os.Exit(1)
		}
		if v == "" {
			v = "Unknown"
		}
		fmt.Printf("%s\n", v)
	},
}

// ImportCmd indexes the items already held by storage.
var ImportCmd = &cobra.Command{
	Use:   "import <config> [repo...]",
	Short: "Index the items held by storage",
	Long:  "Index the items held by storage. Every local and cache repository is imported unless some are named.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, app := newOfflineApp(cmd, args[:1])
		defer app.Shutdown()

		if app.DB() == nil {
			fmt.Fprintln(os.Stderr, "import requires the index database to be enabled")
			os.Exit(1)
		}

		keys := args[1:]
		if len(keys) == 0 {
			for _, r := range app.Registry().LocalRepositories() {
				keys = append(keys, r.Key())
			}
			for _, r := range app.Registry().CacheRepositories() {
				keys = append(keys, r.Key())
			}
		}

		imp := datastore.NewImporter(app.DB(), app.Store(), dcontext.GetLogger(ctx).WithField("component", "registry.datastore.Importer"))
		n, err := imp.Import(ctx, importForce, keys...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to import items: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK: indexed %d items\n", n)
	},
}
