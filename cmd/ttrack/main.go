package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ttrack/internal/app"
	"ttrack/internal/config"
	"ttrack/internal/model"
	"ttrack/internal/report"
	"ttrack/internal/timer"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// command identifies the CLI command being run (e.g. "start", "report").
func newApp(command string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "ttrack",
	Short: "Billable work time tracker",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Time Zone: %s\n", orDefault(cfg.TimeZone, "(system)"))
		fmt.Printf("Database:  %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("API:       %s\n", cfg.API.ListenAddr)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and today's entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawDate, _ := cmd.Flags().GetString("date")

		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		var date model.Date
		if rawDate != "" {
			if date, err = model.ParseDate(rawDate); err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
		}

		snap, err := a.Service().Snapshot(cmd.Context(), date)
		if err != nil {
			return err
		}
		printSnapshot(snap)

		if snap.Active == nil {
			last, err := a.Service().LastCompleted(cmd.Context())
			if err != nil {
				return err
			}
			if last != nil {
				fmt.Printf("Last session: %s / %s, %s - %s (%s)\n",
					last.CustomerName, last.ProjectName,
					last.StartLocal.Format("Jan 2 15:04"), last.EndLocal.Format("15:04"),
					formatDuration(last.Rounded))
			}
		}
		return nil
	},
}

// start command
var startCmd = &cobra.Command{
	Use:   "start PROJECT",
	Short: "Start tracking time on a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		customerName, _ := cmd.Flags().GetString("customer")
		note, _ := cmd.Flags().GetString("note")
		tag, _ := cmd.Flags().GetString("tag")
		nonBillable, _ := cmd.Flags().GetBool("non-billable")
		at, _ := cmd.Flags().GetString("at")
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("start")
		if err != nil {
			return err
		}
		defer a.Close()

		customer, project, err := a.FindProject(cmd.Context(), customerName, args[0])
		if err != nil {
			return err
		}

		opts := timer.StartOptions{
			ProjectID:    project.ID,
			CustomerID:   customer.ID,
			Notes:        note,
			Billable:     !nonBillable,
			Tag:          tag,
			ForceRestart: force,
		}
		if at != "" {
			t, err := a.ParseLocalTime(at)
			if err != nil {
				return err
			}
			opts.StartOverride = &t
		}

		result, err := a.Service().Start(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("pause")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().Pause(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// resume command
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("resume")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().Resume(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session and finalize its entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("stop")
		if err != nil {
			return err
		}
		defer a.Close()

		var opts timer.StopOptions
		if cmd.Flags().Changed("note") {
			note, _ := cmd.Flags().GetString("note")
			opts.Notes = &note
		}
		if cmd.Flags().Changed("tag") {
			tag, _ := cmd.Flags().GetString("tag")
			opts.Tag = &tag
		}
		if cmd.Flags().Changed("non-billable") {
			billable := false
			opts.Billable = &billable
		}
		if at, _ := cmd.Flags().GetString("at"); at != "" {
			t, err := a.ParseLocalTime(at)
			if err != nil {
				return err
			}
			opts.StopOverride = &t
		}

		result, err := a.Service().Stop(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard the session without recording time",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cancel")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().Cancel(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// note command
var noteCmd = &cobra.Command{
	Use:   "note TEXT...",
	Short: "Replace the session's notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("note")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().UpdateNotes(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// adjust command
var adjustCmd = &cobra.Command{
	Use:   "adjust ENTRY_ID",
	Short: "Edit a completed entry's times or notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("adjust")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := timer.AdjustOptions{EntryID: args[0]}
		if raw, _ := cmd.Flags().GetString("start"); raw != "" {
			t, err := a.ParseLocalTime(raw)
			if err != nil {
				return err
			}
			opts.StartLocal = &t
		}
		if raw, _ := cmd.Flags().GetString("end"); raw != "" {
			t, err := a.ParseLocalTime(raw)
			if err != nil {
				return err
			}
			opts.EndLocal = &t
		}
		if cmd.Flags().Changed("note") {
			note, _ := cmd.Flags().GetString("note")
			opts.Notes = &note
		}

		result, err := a.Service().AdjustEntry(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ENTRY_ID",
	Short: "Delete a completed entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("delete")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().DeleteEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report [week|month]",
	Short: "Export a CSV time report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawStart, _ := cmd.Flags().GetString("start")
		rawEnd, _ := cmd.Flags().GetString("end")
		outPath, _ := cmd.Flags().GetString("out")

		a, err := newApp("report")
		if err != nil {
			return err
		}
		defer a.Close()

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if rawStart != "" || rawEnd != "" {
			start, err := model.ParseDate(rawStart)
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			end, err := model.ParseDate(rawEnd)
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
			return a.WriteReportRange(cmd.Context(), out, start, end)
		}

		preset := report.PresetWeek
		if len(args) > 0 {
			preset = report.Preset(args[0])
		}
		return a.WriteReportPreset(cmd.Context(), out, preset)
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		a, err := newApp("serve")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx, addr)
	},
}

// customer command
var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("customer-add")
		if err != nil {
			return err
		}
		defer a.Close()

		customer, err := a.Customers().Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added customer %s (%s)\n", customer.Name, customer.ID)
		return nil
	},
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("customer-list")
		if err != nil {
			return err
		}
		defer a.Close()

		customers, err := a.Customers().GetAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(customers) == 0 {
			fmt.Println("No customers.")
			return nil
		}
		for _, c := range customers {
			archived := ""
			if c.Archived {
				archived = "  [archived]"
			}
			fmt.Printf("%s  %s%s\n", c.ID, c.Name, archived)
		}
		return nil
	},
}

var customerArchiveCmd = &cobra.Command{
	Use:   "archive NAME",
	Short: "Archive a customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("customer-archive")
		if err != nil {
			return err
		}
		defer a.Close()

		customer, err := a.FindCustomer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		customer.Archived = true
		if _, err := a.Customers().Update(cmd.Context(), customer); err != nil {
			return err
		}
		fmt.Printf("Archived customer %s\n", customer.Name)
		return nil
	},
}

var customerRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("customer-rm")
		if err != nil {
			return err
		}
		defer a.Close()

		customer, err := a.FindCustomer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		deleted, err := a.Customers().Delete(cmd.Context(), customer.ID)
		if err != nil {
			return fmt.Errorf("removing customer: %w", err)
		}
		if !deleted {
			fmt.Println("Customer not found.")
			return nil
		}
		fmt.Printf("Removed customer %s\n", customer.Name)
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add CUSTOMER NAME",
	Short: "Add a project for a customer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("project-add")
		if err != nil {
			return err
		}
		defer a.Close()

		customer, err := a.FindCustomer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		project, err := a.Projects().Create(cmd.Context(), customer.ID, args[1], true)
		if err != nil {
			return err
		}
		fmt.Printf("Added project %s (%s) for %s\n", project.Name, project.ID, customer.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list [CUSTOMER]",
	Short: "List projects, for one customer or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp("project-list")
		if err != nil {
			return err
		}
		defer a.Close()

		var customers []*model.Customer
		if len(args) == 1 {
			customer, err := a.FindCustomer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			customers = append(customers, customer)
		} else {
			customers, err = a.Customers().GetAll(cmd.Context())
			if err != nil {
				return err
			}
		}

		printed := 0
		for _, c := range customers {
			projects, err := a.Projects().GetByCustomer(cmd.Context(), c.ID, all)
			if err != nil {
				return err
			}
			for _, p := range projects {
				inactive := ""
				if !p.Active {
					inactive = "  [archived]"
				}
				fmt.Printf("%s  %s / %s%s\n", p.ID, c.Name, p.Name, inactive)
				printed++
			}
		}
		if printed == 0 {
			fmt.Println("No projects.")
		}
		return nil
	},
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive CUSTOMER NAME",
	Short: "Archive a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("project-archive")
		if err != nil {
			return err
		}
		defer a.Close()

		_, project, err := a.FindProject(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		project.Active = false
		if _, err := a.Projects().Update(cmd.Context(), project); err != nil {
			return err
		}
		fmt.Printf("Archived project %s\n", project.Name)
		return nil
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm CUSTOMER NAME",
	Short: "Remove a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("project-rm")
		if err != nil {
			return err
		}
		defer a.Close()

		_, project, err := a.FindProject(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		deleted, err := a.Projects().Delete(cmd.Context(), project.ID)
		if err != nil {
			return fmt.Errorf("removing project: %w", err)
		}
		if !deleted {
			fmt.Println("Project not found.")
			return nil
		}
		fmt.Printf("Removed project %s\n", project.Name)
		return nil
	},
}

// printResult prints a command result. Non-success statuses print the
// message and exit non-zero without the usage noise of a RunE error.
func printResult(result *timer.CommandResult) error {
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	if result.Status != timer.StatusSuccess {
		os.Exit(1)
	}
	if result.Snapshot != nil {
		printSnapshot(result.Snapshot)
	}
	return nil
}

func printSnapshot(snap *timer.Snapshot) {
	switch {
	case snap.Active != nil && !snap.Active.Paused:
		fmt.Printf("Running: %s / %s since %s (%s, rounds to %s)\n",
			snap.Active.CustomerName, snap.Active.ProjectName,
			snap.Active.StartLocal.Format("15:04"),
			formatDuration(snap.Active.Accumulated),
			formatDuration(snap.Active.Rounded))
	case snap.Active != nil:
		fmt.Printf("Paused: %s / %s (%s accumulated, rounds to %s)\n",
			snap.Active.CustomerName, snap.Active.ProjectName,
			formatDuration(snap.Active.Accumulated),
			formatDuration(snap.Active.Rounded))
	default:
		fmt.Println("Idle.")
	}

	if len(snap.Entries) == 0 {
		fmt.Printf("No entries for %s.\n", snap.Date)
		return
	}

	fmt.Printf("\nEntries for %s:\n", snap.Date)
	for _, e := range snap.Entries {
		billable := " "
		if !e.Billable {
			billable = "N"
		}
		fmt.Printf("%s  %s-%s  %-20s  %-20s  %6s  %s %s\n",
			e.EntryID,
			e.StartLocal.Format("15:04"), e.EndLocal.Format("15:04"),
			e.CustomerName, e.ProjectName,
			formatDuration(e.Rounded), billable, e.Notes)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// customer subcommands
	customerCmd.AddCommand(customerAddCmd)
	customerCmd.AddCommand(customerListCmd)
	customerCmd.AddCommand(customerArchiveCmd)
	customerCmd.AddCommand(customerRmCmd)

	// project subcommands
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectListCmd.Flags().BoolP("all", "a", false, "Include archived projects")
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectRmCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("date", "d", "", "Day to show (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringP("customer", "c", "", "Customer name")
	startCmd.Flags().StringP("note", "m", "", "Notes for the entry")
	startCmd.Flags().StringP("tag", "t", "", "Short label for the entry")
	startCmd.Flags().Bool("non-billable", false, "Mark the entry non-billable")
	startCmd.Flags().String("at", "", "Start time override (HH:MM or YYYY-MM-DD HH:MM)")
	startCmd.Flags().BoolP("force", "f", false, "Stop a running session instead of failing")
	startCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().StringP("note", "m", "", "Replace the entry's notes")
	stopCmd.Flags().StringP("tag", "t", "", "Replace the entry's tag")
	stopCmd.Flags().Bool("non-billable", false, "Mark the entry non-billable")
	stopCmd.Flags().String("at", "", "Stop time override (HH:MM or YYYY-MM-DD HH:MM)")
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(adjustCmd)
	adjustCmd.Flags().String("start", "", "New start time")
	adjustCmd.Flags().String("end", "", "New end time")
	adjustCmd.Flags().StringP("note", "m", "", "New notes")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("start", "", "Range start (YYYY-MM-DD)")
	reportCmd.Flags().String("end", "", "Range end (YYYY-MM-DD)")
	reportCmd.Flags().StringP("out", "o", "", "Write CSV to a file instead of stdout")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}
