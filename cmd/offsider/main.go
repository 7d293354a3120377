package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"offsider/internal/app"
	"offsider/internal/config"
	"offsider/internal/db"
	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/export"
	"offsider/internal/fuelwatch"
	"offsider/internal/migrate"
	"offsider/internal/scheduler"
	"offsider/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "offsider",
	Short: "Offsider rig companion",
	Long: `Offsider keeps a drill rig's daily paperwork in one place.
Core concepts (crew-friendly):
- Rig: one site with its own SQLite store under the data dir; pick it at sign-in or with --rig.
- Stock: consumables on the rig with min and buffer levels; short rows show up as LOW.
- Restock: the shopping list; suggestions come straight from stock sitting below its levels.
- Bits and shrouds: registers for drill bits and shrouds with status and condition.
- Equipment faults: gear on site and what is wrong with it, by priority.
- Handover: notes the next shift must read, ordered by priority.
- Travel, refuel and usage logs: quick entries for the daily paperwork.
- Fuel Watch: a job that predicts generator fuel and escalates itself as the tank drains.
- Jobs: the task board; the dashboard shows whatever is critical right now.
- Audit: every change is recorded with who did it; browse /audit or the API.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OFFSIDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default offsider.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "crew", "name recorded in the audit log")
	rootCmd.PersistentFlags().String("rig", "", "rig id (defaults to the only registered rig)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("rig", rootCmd.PersistentFlags().Lookup("rig"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rigsCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath, dataDir, rigsFile, secretFlag string
	var interval int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web app and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Data.Dir = dataDir
			}
			if rigsFile != "" {
				cfg.Auth.RigsFile = rigsFile
			}
			if interval > 0 {
				cfg.Scheduler.IntervalSeconds = interval
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := secretFlag
			if secret == "" {
				secret = cfg.Auth.SessionSecret
			}
			if secret == "" {
				secret = viper.GetString("session-secret")
			}
			if secret == "" {
				return fmt.Errorf("session secret not set; pass --secret, add auth.session_secret to the config or export OFFSIDER_SESSION_SECRET")
			}
			rigs, err := config.LoadRigs(cfg.Auth.RigsFile)
			if err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("load rigs: %w", err)
				}
				rigs = []config.Rig{{ID: "default", Title: "Default Rig"}}
			}
			stores := db.NewStores(cfg.Data.Dir, migrate.Migrate)
			defer stores.Close()
			handler, err := server.New(server.Config{
				Stores:   stores,
				Rigs:     rigs,
				Secret:   secret,
				BasePath: basePath,
			})
			if err != nil {
				return err
			}
			sched := scheduler.New(db.DirRegistry{Dir: cfg.Data.Dir}, stores)
			if cfg.Scheduler.IntervalSeconds > 0 {
				sched.Interval = time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
			}
			stopSweep := sched.Start(cmd.Context())
			defer stopSweep()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Offsider on http://%s (API under %s, docs at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "per-rig store directory (defaults to data.dir)")
	cmd.Flags().StringVar(&rigsFile, "rigs", "", "rigs registry file (defaults to auth.rigs_file)")
	cmd.Flags().StringVar(&secretFlag, "secret", "", "session signing secret")
	cmd.Flags().IntVar(&interval, "interval", 0, "scheduler poll seconds (defaults to scheduler.interval_seconds)")
	return cmd
}

func rigsCmd() *cobra.Command {
	rigs := &cobra.Command{Use: "rigs", Short: "Manage the rigs registry"}
	rigs.AddCommand(rigsListCmd())
	rigs.AddCommand(rigsAddCmd())
	return rigs
}

func rigsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered rigs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				if viper.GetBool("json") {
					return printJSON(a.Rigs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Subtitle", "PIN"})
				for _, r := range a.Rigs {
					pin := ""
					if r.HasPIN() {
						pin = "yes"
					}
					tw.AppendRow(table.Row{r.ID, r.Title, r.Subtitle, pin})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func rigsAddCmd() *cobra.Command {
	var id, title, subtitle, pin string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rig to the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			rigs, err := config.LoadRigs(cfg.Auth.RigsFile)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			if _, ok := config.FindRig(rigs, id); ok {
				return fmt.Errorf("rig %q already exists", id)
			}
			if title == "" {
				title = id
			}
			rigs = append(rigs, config.Rig{ID: id, Title: title, Subtitle: subtitle, PIN: pin})
			if err := config.SaveRigs(cfg.Auth.RigsFile, rigs); err != nil {
				return err
			}
			fmt.Printf("Added rig %s to %s\n", id, cfg.Auth.RigsFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rig id")
	cmd.Flags().StringVar(&title, "title", "", "display title")
	cmd.Flags().StringVar(&subtitle, "subtitle", "", "subtitle shown on the rig picker")
	cmd.Flags().StringVar(&pin, "pin", "", "PIN required at sign-in")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stockCmd() *cobra.Command {
	stock := &cobra.Command{Use: "stock", Short: "Stock on the rig"}
	stock.AddCommand(stockListCmd())
	return stock
}

func stockListCmd() *cobra.Command {
	var low bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stock items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list := e.Repo.ListStockItems
				if low {
					list = e.Repo.ListLowStockItems
				}
				items, err := list(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				lowMark := color.New(color.FgHiRed).Sprint(" ← LOW")
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "On rig", "Min", "Buffer", "Unit", "Location"})
				for _, it := range items {
					name := it.Name
					if it.OnRigQty < it.MinQty || it.OnRigQty < it.BufferQty {
						name += lowMark
					}
					loc := ""
					if it.Location != nil {
						loc = *it.Location
					}
					tw.AppendRow(table.Row{it.ID, name, it.OnRigQty, it.MinQty, it.BufferQty, it.Unit, loc})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&low, "low", false, "only items below min or buffer")
	return cmd
}

func jobsCmd() *cobra.Command {
	jobs := &cobra.Command{Use: "jobs", Short: "The task board"}
	jobs.AddCommand(jobsListCmd())
	return jobs
}

func jobsListCmd() *cobra.Command {
	var openOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job tasks with their effective priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list := e.Repo.ListTasks
				if openOnly {
					list = e.Repo.ListOpenTasks
				}
				tasks, err := list(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Priority", "Title", "Status"})
				for _, t := range tasks {
					title := t.Title
					if snap, ok := fuelwatch.Evaluate(t, now); ok {
						title += color.New(color.FgCyan).Sprintf(" (fuel %d%%, critical in %sh)", snap.Percent, snap.FormatHours())
					}
					status := "open"
					if t.IsDone {
						status = "done"
					}
					if t.IsClosed {
						status = "closed"
					}
					eff := fuelwatch.EffectivePriority(t, now)
					label := eff.Label()
					if eff == domain.PriorityCritical {
						label = color.New(color.FgHiRed).Sprint(label)
					}
					tw.AppendRow(table.Row{t.ID, label, title, status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&openOnly, "open", false, "only open tasks")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the rig store as a zip of CSVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				opts := export.Options{Actor: viper.GetString("actor"), Now: time.Now}
				if err := export.Write(ctx, e.DB, f, opts); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", export.Filename, "output path")
	return cmd
}

func seedCmd() *cobra.Command {
	var tz string
	var horizon int
	var withSample bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed settings and optional sample data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.UpdateSettings(ctx, tz, horizon); err != nil {
					return err
				}
				fmt.Printf("Timezone: %s  |  Reminder horizon: %d days\n", tz, horizon)
				if !withSample {
					return nil
				}
				if err := seedSample(ctx, e, viper.GetString("actor")); err != nil {
					return err
				}
				fmt.Println("Sample data created: locations, stock, restock, shrouds, bits, logs, equipment, handover.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "Australia/Perth", "rig timezone")
	cmd.Flags().IntVar(&horizon, "horizon", 14, "reminder horizon in days")
	cmd.Flags().BoolVar(&withSample, "with-sample", false, "also create sample data")
	return cmd
}

// seedSample loads a demo rig through the engine so every row lands in the
// audit log like a hand-entered one.
func seedSample(ctx context.Context, e engine.Engine, actor string) error {
	rig, err := e.CreateLocationNode(ctx, engine.NodeCreateOptions{Name: "RC Rig 12", Kind: "rig", Actor: actor})
	if err != nil {
		return err
	}
	cont, err := e.CreateLocationNode(ctx, engine.NodeCreateOptions{Name: "Container 1", Kind: "container", ParentID: &rig.ID, Actor: actor})
	if err != nil {
		return err
	}
	shelf, err := e.CreateLocationNode(ctx, engine.NodeCreateOptions{Name: "Shelf A", Kind: "shelf", ParentID: &cont.ID, Actor: actor})
	if err != nil {
		return err
	}

	rods, err := e.CreateStockItem(ctx, engine.StockCreateOptions{
		Name: "Drill Rods", OnRigQty: 20, MinQty: 25, BufferQty: 5, Unit: "pcs",
		LocationNodeID: &shelf.ID, Actor: actor,
	})
	if err != nil {
		return err
	}
	if _, err := e.CreateStockItem(ctx, engine.StockCreateOptions{
		Name: "RC Hammers", OnRigQty: 2, MinQty: 3, BufferQty: 1, Unit: "pcs", Actor: actor,
	}); err != nil {
		return err
	}
	diesel, err := e.CreateStockItem(ctx, engine.StockCreateOptions{
		Name: "Diesel", OnRigQty: 800, MinQty: 600, BufferQty: 200, Unit: "L", Actor: actor,
	})
	if err != nil {
		return err
	}
	if _, err := e.CreateRestockItem(ctx, engine.RestockCreateOptions{
		StockItemID: &rods.ID, Qty: 10, Priority: domain.PriorityMedium, Actor: actor,
	}); err != nil {
		return err
	}

	shrouds := []struct {
		name, condition string
	}{
		{"137 mm", "NEW"},
		{"142 mm", "GOOD"},
		{"141 mm", "GOOD"},
		{"140 mm", "WORN"},
	}
	shroudIDs := make(map[string]int64, len(shrouds))
	for _, s := range shrouds {
		created, err := e.CreateShroud(ctx, engine.ShroudCreateOptions{Name: s.name, Condition: s.condition, Actor: actor})
		if err != nil {
			return err
		}
		shroudIDs[s.name] = created.ID
	}
	bits := []engine.BitCreateOptions{
		{Serial: "BIT-137A", Status: "NEW", SizeMM: floatPtr(137), ShroudID: idPtr(shroudIDs["137 mm"]), Notes: "Fresh", Actor: actor},
		{Serial: "13897-09", Status: "VERY_USED", SizeMM: floatPtr(143), LifeMetersExpected: floatPtr(4000), ShroudID: idPtr(shroudIDs["142 mm"]), Actor: actor},
		{Serial: "13897-08", Status: "VERY_USED", SizeMM: floatPtr(142), LifeMetersExpected: floatPtr(4000), ShroudID: idPtr(shroudIDs["141 mm"]), Actor: actor},
		{Serial: "12748-1", Status: "EOL", LifeMetersExpected: floatPtr(4000), Notes: "debuttoned", Actor: actor},
		{Serial: "13670-27", Status: "VERY_USED", LifeMetersExpected: floatPtr(4000), ShroudID: idPtr(shroudIDs["140 mm"]), Actor: actor},
	}
	for _, b := range bits {
		if _, err := e.CreateBit(ctx, b); err != nil {
			return err
		}
	}

	if _, err := e.CreateUsageLog(ctx, engine.UsageCreateOptions{
		StockItemID: &diesel.ID, Qty: 150, Unit: "L", Notes: "Morning shift", Actor: actor,
	}); err != nil {
		return err
	}
	if _, err := e.CreateTravelLog(ctx, engine.TravelCreateOptions{
		Person: "Sam", FromLocation: "Camp", ToLocation: "Karijini NP access rd",
		Notes: "Corrugations heavy", Actor: actor,
	}); err != nil {
		return err
	}
	if _, err := e.CreateRefuelLog(ctx, engine.RefuelCreateOptions{
		FuelType: "diesel", AmountLitres: 200, BeforeAfterNote: "before 200 L, after 400 L",
		Notes: "Tank top-up", Actor: actor,
	}); err != nil {
		return err
	}

	comp, err := e.CreateEquipment(ctx, "Compressor X200", "Serial COMPX200-77. Keep an eye on temps.", actor)
	if err != nil {
		return err
	}
	if _, err := e.CreateFault(ctx, engine.FaultCreateOptions{
		EquipmentID: comp.ID, Description: "Intermittent overheat alarm",
		Priority: domain.PriorityHigh, Actor: actor,
	}); err != nil {
		return err
	}

	if _, err := e.CreateHandoverNote(ctx, engine.HandoverCreateOptions{
		Title: "Replace cyclone liners", Body: "Order placed.",
		Priority: domain.PriorityHigh, Author: "Alex", Actor: actor,
	}); err != nil {
		return err
	}
	if _, err := e.CreateHandoverNote(ctx, engine.HandoverCreateOptions{
		Title: "Grease rod handler", Body: "Due tomorrow.",
		Priority: domain.PriorityMedium, Author: "Alex", Actor: actor,
	}); err != nil {
		return err
	}
	return nil
}

func snapshotCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Copy the rig's SQLite file for backup",
		Long:  "Copies the rig's SQLite file as-is. Take snapshots while the server is idle so no write lands mid-copy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				rig, err := a.ResolveRig(viper.GetString("rig"))
				if err != nil {
					return err
				}
				src := db.Path(a.Config.Data.Dir, rig.ID)
				if _, err := os.Stat(src); err != nil {
					return fmt.Errorf("no store for rig %q at %s", rig.ID, src)
				}
				if out == "" {
					dir := filepath.Join(a.Config.Data.Dir, "snapshots")
					if a.Config.Data.Dir == "" {
						dir = filepath.Join("data", "snapshots")
					}
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return err
					}
					out = filepath.Join(dir, fmt.Sprintf("%s-%s.db", db.SafeName(rig.ID), time.Now().Format("20060102-150405")))
				}
				in, err := os.Open(src)
				if err != nil {
					return err
				}
				defer in.Close()
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if _, err := io.Copy(f, in); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Snapshot written to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default <data dir>/snapshots/<rig>-<timestamp>.db)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Config file helpers"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write starter offsider.yaml and rigs.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.DefaultPath
			}
			if err := writeIfAbsent(path, config.GenerateDefault()); err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return writeIfAbsent(cfg.Auth.RigsFile, config.GenerateDefaultRigs())
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

// --- helpers ---

func withApp(fn func(*app.App) error) error {
	a, err := app.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(func(a *app.App) error {
		rig, err := a.ResolveRig(viper.GetString("rig"))
		if err != nil {
			return err
		}
		e, err := a.Engine(rig.ID)
		if err != nil {
			return err
		}
		return fn(ctx, e)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s already exists, skipping\n", path)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func idPtr(v int64) *int64 { return &v }
