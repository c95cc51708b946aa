package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Luismorlan/familyfeed/backend"
	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
	"github.com/Luismorlan/familyfeed/notifier"
	"github.com/Luismorlan/familyfeed/utils"
	"github.com/Luismorlan/familyfeed/utils/dotenv"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

func connect() (*gorm.DB, error) {
	if err := dotenv.LoadDotEnvs(); err != nil {
		return nil, err
	}
	Logger.InitLogger()
	return utils.GetDBConnection()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the feed tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			return utils.DatabaseSetupAndMigration(db)
		},
	}
}

func newHydrateCmd() *cobra.Command {
	var (
		userID  string
		limit   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "hydrate <family_id>",
		Short: "Run one hydration of a family as a user, enforcing retention, and print the feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(backend.WithUser(cmd.Context(), userID), timeout)
			defer cancel()

			reporter := &chanReporter{reports: make(chan feed.HydrationReport, 1)}
			synchronizer := feed.NewSynchronizer(ctx, feed.SynchronizerConfig{Name: "feedctl", DefaultLimit: limit},
				backend.NewGormBackend(db), nil, reporter)
			defer synchronizer.Close()

			if err := synchronizer.Load(args[0]); err != nil {
				return err
			}
			state, err := waitSettled(ctx, synchronizer)
			if err != nil {
				return err
			}
			// The report follows the publish of the state.
			select {
			case report := <-reporter.reports:
				printState(cmd, state, report)
			case <-ctx.Done():
				return ctx.Err()
			}
			return state.Error
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "acting user id")
	cmd.Flags().IntVar(&limit, "default_limit", feed.DefaultSlideshowPhotoLimit, "limit of families without settings")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newNotifyCmd() *cobra.Command {
	var reactions bool
	cmd := &cobra.Command{
		Use:   "notify [family_id]",
		Short: "Announce a change through postgres NOTIFY, every listening server re-hydrates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID := ""
			if len(args) == 1 {
				familyID = args[0]
			}
			if familyID == "" && !reactions {
				return errors.New("give a family id or --reactions")
			}
			db, err := connect()
			if err != nil {
				return err
			}
			return notifier.NewPgNotifier(db).NotifyFamilyChanged(cmd.Context(), familyID)
		},
	}
	cmd.Flags().BoolVar(&reactions, "reactions", false, "announce a reaction change concerning every family")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "settings <family_id>",
		Short: "Set the slideshow photo limit of a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			db, err := connect()
			if err != nil {
				return err
			}
			return backend.NewGormBackend(db).UpsertFamilySettings(cmd.Context(), &model.FamilySettings{
				FamilyID:            args[0],
				SlideshowPhotoLimit: limit,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", feed.DefaultSlideshowPhotoLimit, "maximum number of visible posts")
	return cmd
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedctl",
		Short:         "Administer family feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Shared flags of utils/flag, e.g. -service.
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(newMigrateCmd(), newHydrateCmd(), newNotifyCmd(), newSettingsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// waitSettled blocks until the synchronizer reaches Ready or Errored.
func waitSettled(ctx context.Context, synchronizer *feed.Synchronizer) (feed.State, error) {
	for state := range synchronizer.Watch(ctx) {
		if state.Status == feed.StatusReady || state.Status == feed.StatusErrored {
			return state, nil
		}
	}
	return feed.State{}, ctx.Err()
}

type chanReporter struct {
	reports chan feed.HydrationReport
}

func (r *chanReporter) ReportHydration(ctx context.Context, report feed.HydrationReport) {
	select {
	case r.reports <- report:
	default:
	}
}

func printState(cmd *cobra.Command, state feed.State, report feed.HydrationReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "family %s: %s, %d posts, limit %d, evicted %d (%d failed)\n",
		state.FamilyID, state.Status, len(state.Posts), report.Limit, report.Evicted, report.EvictionFailures)
	if report.OverCapacity {
		fmt.Fprintln(out, "warning: favorites alone exceed the limit")
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tAUTHOR\tFAVORITE\tLIKES\tCOMMENTS")
	for _, p := range state.Posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n", p.Id, p.Timestamp.Format(time.RFC3339), p.Author.Name,
			p.IsFavorite, p.LikesCount, p.CommentsCount)
	}
	w.Flush()
}
