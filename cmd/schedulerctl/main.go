package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/config"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/db"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/logging"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "schedulerctl",
		Short:         "Operate the CareSync scheduler database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}

	withMigrator := func(fn func(m *db.Migrator, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("POSTGRES_DSN")
			if dsn == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}
			m, err := db.NewMigrator(dsn)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(m, cmd, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(m *db.Migrator, cmd *cobra.Command, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: withMigrator(func(m *db.Migrator, cmd *cobra.Command, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version without running it",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *db.Migrator, cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			if err := m.Force(version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forced version to %d\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied migration version",
		RunE: withMigrator(func(m *db.Migrator, cmd *cobra.Command, _ []string) error {
			version, dirty, ok, err := m.Version()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}

type services struct {
	cfg          config.Config
	appointments *appointment.Service
	templates    *template.Service
}

func withServices(fn func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Storage != config.StoragePostgres {
			return fmt.Errorf("schedulerctl needs STORAGE=postgres")
		}
		logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Env, cfg.LogLevel)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 2)
		if err != nil {
			return err
		}
		defer pool.Close()

		templates := template.NewService(template.NewPgRepository(pool), cfg.DefaultSlotMinutes)
		appts := appointment.NewService(appointment.NewPgRepository(pool, cfg.Location), templates, nil, cfg, logger)
		return fn(ctx, &services{cfg: cfg, appointments: appts, templates: templates}, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseRange reads "HH:MM-HH:MM".
func parseRange(s string) (slot.Range, error) {
	startRaw, endRaw, ok := strings.Cut(s, "-")
	if !ok {
		return slot.Range{}, fmt.Errorf("invalid range %q: want HH:MM-HH:MM", s)
	}
	start, err := slot.ParseClock(startRaw)
	if err != nil {
		return slot.Range{}, err
	}
	end, err := slot.ParseClock(endRaw)
	if err != nil {
		return slot.Range{}, err
	}
	return slot.Range{Start: start, End: end}, nil
}

// provider parses a provider id and checks that the provider exists.
func (s *services) provider(ctx context.Context, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid provider id: %w", err)
	}
	if err := s.appointments.CheckProvider(ctx, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func templateView(t *template.WeeklyTemplate) map[string]any {
	days := map[string]any{}
	for i, d := range t.Days() {
		ranges := make([]string, 0, len(d.Ranges))
		for _, r := range d.Ranges {
			ranges = append(ranges, r.String())
		}
		days[time.Weekday(i).String()] = map[string]any{"enabled": d.Enabled, "ranges": ranges}
	}
	return map[string]any{
		"provider_id":  t.ProviderID,
		"slot_minutes": t.SlotMinutes,
		"days":         days,
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect or edit a provider's weekly template",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <provider-id>",
		Short: "Print the weekly template",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, err := s.provider(ctx, args[0])
			if err != nil {
				return err
			}
			t, err := s.templates.Get(ctx, providerID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), templateView(t))
		}),
	})

	setCmd := &cobra.Command{
		Use:   "set <provider-id> <day>",
		Short: "Replace one weekday's ranges",
		Args:  cobra.ExactArgs(2),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, err := s.provider(ctx, args[0])
			if err != nil {
				return err
			}
			day, err := template.ParseDay(args[1])
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetStringSlice("range")
			disabled, _ := cmd.Flags().GetBool("disabled")
			ranges := make([]slot.Range, 0, len(raw))
			for _, r := range raw {
				parsed, err := parseRange(r)
				if err != nil {
					return err
				}
				ranges = append(ranges, parsed)
			}
			t, err := s.templates.SetDay(ctx, providerID, day, !disabled, ranges)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), templateView(t))
		}),
	}
	setCmd.Flags().StringSlice("range", nil, "working range HH:MM-HH:MM, repeatable")
	setCmd.Flags().Bool("disabled", false, "store the ranges but leave the day off")
	cmd.AddCommand(setCmd)

	toggleCmd := &cobra.Command{
		Use:   "toggle <provider-id> <day>",
		Short: "Enable or disable a weekday",
		Args:  cobra.ExactArgs(2),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, err := s.provider(ctx, args[0])
			if err != nil {
				return err
			}
			day, err := template.ParseDay(args[1])
			if err != nil {
				return err
			}
			enabled, _ := cmd.Flags().GetBool("enabled")
			t, err := s.templates.ToggleDay(ctx, providerID, day, enabled)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), templateView(t))
		}),
	}
	toggleCmd.Flags().Bool("enabled", true, "new enabled state")
	cmd.AddCommand(toggleCmd)

	minutesCmd := &cobra.Command{
		Use:   "minutes <provider-id> <minutes>",
		Short: "Set the template slot duration",
		Args:  cobra.ExactArgs(2),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, err := s.provider(ctx, args[0])
			if err != nil {
				return err
			}
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid minutes: %w", err)
			}
			t, err := s.templates.SetSlotMinutes(ctx, providerID, minutes)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), templateView(t))
		}),
	}
	cmd.AddCommand(minutesCmd)

	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage materialized availability",
	}

	parseProviderDate := func(s *services, args []string) (uuid.UUID, time.Time, error) {
		providerID, err := uuid.Parse(args[0])
		if err != nil {
			return uuid.Nil, time.Time{}, fmt.Errorf("invalid provider id: %w", err)
		}
		date, err := appointment.ParseDate(args[1], s.cfg.Location)
		if err != nil {
			return uuid.Nil, time.Time{}, err
		}
		return providerID, date, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <provider-id> <date>",
		Short: "Print a day's slots, materializing it from the template if needed",
		Args:  cobra.ExactArgs(2),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, date, err := parseProviderDate(s, args)
			if err != nil {
				return err
			}
			day, err := s.appointments.ListAvailability(ctx, providerID, date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), day.Slots)
		}),
	})

	generateCmd := &cobra.Command{
		Use:   "generate <provider-id> <date> <HH:MM-HH:MM>",
		Short: "Add slots for a range, keeping existing bookings",
		Args:  cobra.ExactArgs(3),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, date, err := parseProviderDate(s, args)
			if err != nil {
				return err
			}
			r, err := parseRange(args[2])
			if err != nil {
				return err
			}
			minutes, _ := cmd.Flags().GetInt("minutes")
			day, err := s.appointments.GenerateSlots(ctx, providerID, date, r, minutes)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), day.Slots)
		}),
	}
	generateCmd.Flags().Int("minutes", 0, "slot duration, 0 uses the template's")
	cmd.AddCommand(generateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "copy <provider-id> <from-date> <to-date>",
		Short: "Copy a day's slot times to another date as open slots",
		Args:  cobra.ExactArgs(3),
		RunE: withServices(func(ctx context.Context, s *services, cmd *cobra.Command, args []string) error {
			providerID, from, err := parseProviderDate(s, args)
			if err != nil {
				return err
			}
			to, err := appointment.ParseDate(args[2], s.cfg.Location)
			if err != nil {
				return err
			}
			day, err := s.appointments.CopyDay(ctx, providerID, from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), day.Slots)
		}),
	})

	return cmd
}
