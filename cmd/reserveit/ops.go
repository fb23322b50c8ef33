package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reserveit/backend/internal/calendar/gcal"
	"reserveit/backend/internal/config"
	"reserveit/backend/internal/resource"
	"reserveit/backend/internal/service/reservations"
	"reserveit/backend/internal/store"
	"reserveit/backend/internal/store/sqldb"
)

const timeLayout = "2006-01-02 15:04 MST"

func newSweepCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			svc, err := a.service(cmd.Context(), db)
			if err != nil {
				return err
			}
			res, err := svc.ReminderSweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("due=%d reminded=%d skipped=%d failed=%d purged=%d\n", res.Due, res.Reminded, res.Skipped, res.Failed, res.Purged)
			if res.Failed > 0 {
				return fmt.Errorf("%d reminders failed", res.Failed)
			}
			return nil
		},
	}
}

func newMigrateCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			applied, err := sqldb.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("database is up to date")
				return nil
			}
			for _, v := range applied {
				cmd.Println("applied", v)
			}
			return nil
		},
	}
}

func newResourcesCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Inspect resource definitions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [dir]",
		Short: "Validate resource files and print a summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				a.cfg.ResourcesDir = args[0]
			}
			catalog, err := a.loadCatalog()
			if err != nil {
				return err
			}
			printResources(cmd, catalog.All())
			return nil
		},
	})
	return cmd
}

func printResources(cmd *cobra.Command, defs []*resource.Definition) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCALENDARS\tHOURS\tSTEP\tMAX\tDAYS AHEAD\tSHAREABLE")
	for _, d := range defs {
		ahead := "unlimited"
		if d.MaxDaysAhead > 0 {
			ahead = fmt.Sprint(d.MaxDaysAhead)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s-%s\t%dm\t%dm\t%s\t%v\n",
			d.ID, d.Name, len(d.Calendars), d.DayStart, d.DayEnd,
			d.IncrementMinutes, d.MaxDurationMinutes, ahead, d.AllowShareable)
	}
	_ = w.Flush()
}

func newReservationsCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List or cancel active reservations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			rows, err := sqldb.NewReservationRepo(db).ListActive(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tRESOURCE\tCALENDAR\tSTART\tEND\tSHAREABLE\tREMINDED")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\t%v\n",
					r.Identity, r.ResourceID, r.CalendarID,
					r.StartTime.In(a.cfg.AppTimezone).Format(timeLayout),
					r.EndTime.In(a.cfg.AppTimezone).Format(timeLayout),
					r.Shareable, r.ReminderSent)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <email>",
		Short: "Cancel the active reservation held by an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			svc, err := a.service(cmd.Context(), db)
			if err != nil {
				return err
			}
			r, err := svc.Cancel(cmd.Context(), args[0])
			if err != nil {
				return errors.New(reservations.UserMessage(err))
			}
			cmd.Printf("cancelled %s on %s at %s\n", r.Identity, r.ResourceID, r.StartTime.In(a.cfg.AppTimezone).Format(timeLayout))
			return nil
		},
	})
	return cmd
}

func newOrphansCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Review calendar events that compensation could not remove",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List orphaned events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			orphans, err := sqldb.NewOrphanRepo(db).ListOrphans(cmd.Context(), all)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCALENDAR\tEVENT\tIDENTITY\tCREATED\tRESOLVED\tREASON")
			for _, o := range orphans {
				resolved := "-"
				if o.ResolvedAt != nil {
					resolved = o.ResolvedAt.In(a.cfg.AppTimezone).Format(timeLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.CalendarID, o.EventID, o.Identity,
					o.CreatedAt.In(a.cfg.AppTimezone).Format(timeLayout), resolved, o.Reason)
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved orphans")

	var deleteEvent bool
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an orphan handled, optionally deleting its event first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("orphan id must be a UUID: %w", err)
			}
			a, err := load()
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			repo := sqldb.NewOrphanRepo(db)
			if deleteEvent {
				if err := a.deleteOrphanEvent(cmd.Context(), repo, id); err != nil {
					return err
				}
			}
			if err := repo.ResolveOrphan(cmd.Context(), id, time.Now()); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no open orphan %s", id)
				}
				return err
			}
			cmd.Println("resolved", id)
			return nil
		},
	}
	resolve.Flags().BoolVar(&deleteEvent, "delete", false, "delete the calendar event before resolving")

	cmd.AddCommand(list, resolve)
	return cmd
}

func (a *app) deleteOrphanEvent(ctx context.Context, repo store.OrphanRepository, id uuid.UUID) error {
	open, err := repo.ListOrphans(ctx, false)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o.ID != id {
			continue
		}
		gw, err := a.gateway(ctx)
		if err != nil {
			return err
		}
		if err := gw.DeleteEvent(ctx, o.CalendarID, o.EventID); err != nil {
			return err
		}
		a.log.Info("orphaned event deleted", slog.String("calendar_id", o.CalendarID), slog.String("event_id", o.EventID))
		return nil
	}
	return fmt.Errorf("no open orphan %s", id)
}

func newGoogleAuthCmd(load appLoader) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "google-auth",
		Short: "Authorize the Google account and store its token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if a.cfg.CalendarProvider != config.ProviderGoogle {
				return fmt.Errorf("calendar.provider is %q, not %q", a.cfg.CalendarProvider, config.ProviderGoogle)
			}
			oauthCfg, err := gcal.OAuthConfig(a.cfg.GoogleCredentialsFile)
			if err != nil {
				return err
			}

			if code == "" {
				cmd.Println("Open this URL, approve access, then paste the code:")
				cmd.Println(gcal.AuthorizeURL(oauthCfg))
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if err := gcal.Exchange(cmd.Context(), oauthCfg, code, a.cfg.GoogleTokenFile); err != nil {
				return err
			}
			cmd.Println("token saved to", a.cfg.GoogleTokenFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code (prompted when empty)")
	return cmd
}
