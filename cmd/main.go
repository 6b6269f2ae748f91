package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fleet-fuel-monitor/internal/api"
	"fleet-fuel-monitor/internal/cache"
	"fleet-fuel-monitor/internal/config"
	"fleet-fuel-monitor/internal/db"
	"fleet-fuel-monitor/internal/efficiency"
	"fleet-fuel-monitor/internal/models"
	"fleet-fuel-monitor/internal/parser"
	"fleet-fuel-monitor/internal/pocketbase"
	"fleet-fuel-monitor/internal/report"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	dbPath   string
	envFile  string
	cfg      *config.Config
	database *db.Database
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fleet-fuel",
		Short: "Fleet Fuel Monitor - refuel ingestion and fuel efficiency reporting",
		Long: `A CLI tool for collecting truck refuel records and reporting fleet fuel
efficiency (km/L) per vehicle. Data lives in SQLite or is read from a
PocketBase backend, and reports are served over a REST API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(envFile)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (default $DB_PATH or fleet_fuel.db)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load")

	// Add commands
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(efficiencyCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(vehicleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB initializes database connection
func initDB() error {
	var err error
	database, err = db.New(cfg.DBPath)
	return err
}

func pocketbaseClient() *pocketbase.Client {
	return pocketbase.NewClient(pocketbase.Config{
		BaseURL:           cfg.PBBaseURL,
		AuthCollection:    cfg.PBAuthCollection,
		Identity:          cfg.PBIdentity,
		Password:          cfg.PBPassword,
		VehicleCollection: cfg.PBVehicleCollection,
		FuelCollection:    cfg.PBFuelCollection,
		Timeout:           cfg.PBTimeout,
	})
}

// reportSource returns the data source named by cfg.ReportSource
func reportSource() (report.Source, error) {
	switch cfg.ReportSource {
	case "local":
		return database, nil
	case "pocketbase":
		return pocketbaseClient(), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.ReportSource)
	}
}

// serverCmd starts the REST API server
func serverCmd() *cobra.Command {
	var addr string
	var source string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if source != "" {
				cfg.ReportSource = strings.ToLower(source)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			src, err := reportSource()
			if err != nil {
				return err
			}

			reportCache := cache.New(cache.Config{
				RedisURL:    cfg.RedisURL,
				EnableRedis: cfg.EnableRedis,
				DefaultTTL:  cfg.CacheTTL,
			})
			defer reportCache.Close()

			reports := report.NewService(cfg.ReportSource, src, reportCache, cfg.CacheTTL, cfg.Efficiency)
			server := api.NewServer(database, reports)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reports.StartPoller(ctx, cfg.PollInterval)

			httpServer := &http.Server{
				Addr:         cfg.ListenAddr,
				Handler:      server.Router(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			fmt.Printf("Fleet Fuel Monitor API Server\n")
			fmt.Printf("   Listening on %s\n", cfg.ListenAddr)
			fmt.Printf("   Database: %s\n", cfg.DBPath)
			fmt.Printf("   Report source: %s (cache: %s)\n\n", cfg.ReportSource, reportCache.Backend())
			fmt.Println("Available endpoints:")
			fmt.Println("  GET  /health")
			fmt.Println("  GET  /metrics")
			fmt.Println("  GET  /api/v1/vehicles")
			fmt.Println("  POST /api/v1/vehicles")
			fmt.Println("  GET  /api/v1/vehicles/{id}")
			fmt.Println("  GET  /api/v1/refuels")
			fmt.Println("  POST /api/v1/refuels")
			fmt.Println("  POST /api/v1/refuels/batch")
			fmt.Println("  GET  /api/v1/efficiency")
			fmt.Println("  GET  /api/v1/efficiency/{vehicle_id}")
			fmt.Println("  GET  /api/v1/stats")
			fmt.Println()

			errCh := make(chan error, 1)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			log.Printf("INFO: shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			log.Printf("INFO: server shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default $LISTEN_ADDR or :8080)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Report source: local or pocketbase (default $REPORT_SOURCE)")
	return cmd
}

// fillRefuelDefaults assigns an ID and timestamp where the input had none
func fillRefuelDefaults(records []models.RefuelEvent, now time.Time) {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].Created.IsZero() {
			records[i].Created = now
		}
	}
}

// ingestCmd ingests refuel records from files
func ingestCmd() *cobra.Command {
	var format string
	var validate bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest refuel records from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			p := parser.NewParser(format)
			totalRecords := 0
			totalErrors := 0

			for _, file := range args {
				fmt.Printf("Processing %s...\n", file)
				start := time.Now()

				records, err := p.ParseFile(file)
				if err != nil {
					fmt.Printf("  Error: %v\n", err)
					totalErrors++
					continue
				}

				// Validate if requested
				if validate {
					var valid []models.RefuelEvent
					for _, r := range records {
						if errs := parser.ValidateRefuel(&r); len(errs) == 0 {
							valid = append(valid, r)
						} else {
							fmt.Printf("  Skipping record %s: %s\n", r.ID, strings.Join(errs, "; "))
							totalErrors++
						}
					}
					records = valid
				}
				fillRefuelDefaults(records, time.Now().UTC())

				// Insert into database
				count, err := database.InsertRefuelBatch(records)
				if err != nil {
					fmt.Printf("  Database error: %v\n", err)
					continue
				}

				elapsed := time.Since(start)
				fmt.Printf("  Inserted %d of %d records in %v\n", count, len(records), elapsed)
				totalRecords += int(count)
			}

			fmt.Printf("\nTotal: %d records ingested", totalRecords)
			if totalErrors > 0 {
				fmt.Printf(", %d errors", totalErrors)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "File format (csv, json)")
	cmd.Flags().BoolVarP(&validate, "validate", "v", true, "Validate records before inserting")
	return cmd
}

// efficiencyCmd computes and prints the fleet efficiency report
func efficiencyCmd() *cobra.Command {
	var source string
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "efficiency",
		Short: "Compute the fleet fuel efficiency report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != "" {
				cfg.ReportSource = strings.ToLower(source)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			if cfg.ReportSource == "local" {
				if err := initDB(); err != nil {
					return fmt.Errorf("database error: %w", err)
				}
				defer database.Close()
			}

			src, err := reportSource()
			if err != nil {
				return err
			}

			start := time.Now()
			res := report.NewService(cfg.ReportSource, src, nil, 0, cfg.Efficiency).Refresh(cmd.Context())
			elapsed := time.Since(start)

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			default:
				printReport(res, elapsed)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Report source: local or pocketbase (default $REPORT_SOURCE)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

func printReport(res report.Result, elapsed time.Duration) {
	fmt.Printf("Fleet Fuel Efficiency (source: %s, computed in %v)\n", res.Source, elapsed)
	fmt.Println("==========================================")
	if res.Degraded {
		fmt.Println("  Warning: data source unavailable, report may be incomplete")
	}

	if res.NoData {
		fmt.Println("  No vehicles have enough refuel data to compute efficiency.")
		return
	}

	fmt.Printf("  Fleet Average:  %.2f km/L\n", res.Summary.Average)
	fmt.Printf("  Best:           %.2f km/L\n", res.Summary.Maximum)
	fmt.Printf("  Worst:          %.2f km/L\n", res.Summary.Minimum)
	fmt.Printf("  Vehicles:       %d\n", res.Summary.VehiclesWithData)

	for _, c := range efficiency.Categories {
		records := res.Categorized[c]
		fmt.Printf("\n%s (%d)\n", strings.ToUpper(c.String()), len(records))
		for _, r := range records {
			fmt.Printf("  %-20s %8.2f km/L  %10.1f km  %8.1f L  %3d segments\n",
				r.Label, r.KMPerLiter, r.TotalDistanceKM, r.TotalFuelLiters, r.ValidSegments)
		}
	}
}

// syncCmd copies PocketBase collections into the local database
func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull vehicles and refuel records from PocketBase into SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.PBBaseURL == "" {
				return errors.New("PB_URL is required for sync")
			}
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			client := pocketbaseClient()
			ctx := cmd.Context()
			start := time.Now()

			vehicles, err := client.ListVehicles(ctx)
			if err != nil {
				return fmt.Errorf("fetch vehicles: %w", err)
			}
			for i := range vehicles {
				if err := database.InsertVehicle(&vehicles[i]); err != nil {
					return fmt.Errorf("store vehicle %s: %w", vehicles[i].ID, err)
				}
			}

			events, err := client.ListRefuelEvents(ctx)
			if err != nil {
				return fmt.Errorf("fetch refuel events: %w", err)
			}
			inserted, err := database.InsertRefuelBatch(events)
			if err != nil {
				return fmt.Errorf("store refuel events: %w", err)
			}

			fmt.Printf("Synced %d vehicles and %d refuel records (%d new) in %v\n",
				len(vehicles), len(events), inserted, time.Since(start))
			return nil
		},
	}
}

// statsCmd shows database statistics
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats()
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}

			fmt.Println("Fleet Fuel Monitor Statistics")
			fmt.Println("=============================")
			fmt.Printf("  Total Vehicles:     %d\n", stats.TotalVehicles)
			fmt.Printf("  Refuel Records:     %d\n", stats.TotalRefuels)
			fmt.Printf("  Fuel Recorded:      %.1f L\n", stats.TotalFuelLiters)
			fmt.Printf("  Missing Odometer:   %d\n", stats.MissingOdometer)
			fmt.Printf("  Missing Fuel:       %d\n", stats.MissingFuelValue)
			fmt.Printf("  Database:           %s\n", cfg.DBPath)

			return nil
		},
	}
}

// generateCmd generates sample trucks and refuel histories
func generateCmd() *cobra.Command {
	var refuels int
	var vehicleCount int
	var output string
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample refuel data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))

			vehicles, records := sampleFleet(rng, vehicleCount, refuels, time.Now().UTC())
			for i := range vehicles {
				if err := database.InsertVehicle(&vehicles[i]); err != nil {
					return fmt.Errorf("insert vehicle: %w", err)
				}
			}
			fmt.Printf("Created %d vehicles\n", len(vehicles))

			start := time.Now()
			inserted, err := database.InsertRefuelBatch(records)
			if err != nil {
				return fmt.Errorf("insert refuels: %w", err)
			}
			fmt.Printf("Generated %d refuel records in %v\n", inserted, time.Since(start))

			// Export to file if requested
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer file.Close()

				enc := json.NewEncoder(file)
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return fmt.Errorf("error writing output file: %w", err)
				}
				fmt.Printf("Data exported to %s\n", output)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&refuels, "refuels", "r", 30, "Refuel records per vehicle")
	cmd.Flags().IntVarP(&vehicleCount, "vehicles", "n", 10, "Number of vehicles to create")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export generated refuels to JSON file")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default: current time)")
	return cmd
}

// sampleFleet builds trucks with a per-truck consumption profile and a
// refuel history ending at end. A few readings are left blank and the
// odometer occasionally jumps, as field data does.
func sampleFleet(rng *rand.Rand, vehicleCount, refuels int, end time.Time) ([]models.Vehicle, []models.RefuelEvent) {
	vehicleTypes := []string{"Tractor", "Rigid", "Tanker", "Tipper"}

	var vehicles []models.Vehicle
	var records []models.RefuelEvent

	for i := 0; i < vehicleCount; i++ {
		v := models.Vehicle{
			ID:          uuid.NewString(),
			Name:        fmt.Sprintf("Truck %d", i+1),
			VehicleType: vehicleTypes[rng.Intn(len(vehicleTypes))],
			CreatedAt:   end,
		}
		// every fifth truck has no plate on record
		if i%5 != 4 {
			v.PlateNumber = fmt.Sprintf("FL-%04d", rng.Intn(10000))
		}
		vehicles = append(vehicles, v)

		kmPerLiter := 3 + rng.Float64()*17
		odometer := float64(20000 + rng.Intn(200000))
		created := end.Add(-time.Duration(refuels*48) * time.Hour)

		for j := 0; j < refuels; j++ {
			distance := 150 + rng.Float64()*750
			odometer += distance
			created = created.Add(time.Duration(24+rng.Intn(48)) * time.Hour)

			e := models.RefuelEvent{
				ID:        uuid.NewString(),
				VehicleID: v.ID,
				Created:   created,
			}

			odo := odometer
			if rng.Intn(40) == 0 {
				odo += 5000 + rng.Float64()*5000
			}
			if rng.Intn(20) != 0 {
				e.OdometerKM = models.Float(odo)
			}
			if rng.Intn(20) != 0 {
				e.FuelLiters = models.Float(distance / kmPerLiter * (0.9 + rng.Float64()*0.2))
			}
			records = append(records, e)
		}
	}

	return vehicles, records
}

// vehicleCmd manages vehicles
func vehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Vehicle management commands",
	}

	// List subcommand
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			vehicles, err := database.ListVehicles(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing vehicles: %w", err)
			}

			if len(vehicles) == 0 {
				fmt.Println("No vehicles found. Use 'fleet-fuel generate' or 'fleet-fuel sync' to add some.")
				return nil
			}

			fmt.Printf("%-36s %-12s %-20s %-10s\n", "ID", "Plate", "Name", "Type")
			fmt.Println(strings.Repeat("-", 81))
			for _, v := range vehicles {
				fmt.Printf("%-36s %-12s %-20s %-10s\n", v.ID, v.PlateNumber, v.Name, v.VehicleType)
			}

			return nil
		},
	}

	var id, plate, name, vehicleType string

	// Add subcommand
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plate == "" && id == "" {
				return errors.New("either --plate or --id is required")
			}
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			v := models.Vehicle{
				ID:          id,
				PlateNumber: plate,
				Name:        name,
				VehicleType: vehicleType,
			}
			if v.ID == "" {
				v.ID = uuid.NewString()
			}

			if err := database.InsertVehicle(&v); err != nil {
				return fmt.Errorf("error saving vehicle: %w", err)
			}
			fmt.Printf("Saved vehicle %s (%s)\n", v.ID, efficiency.Label(v))
			return nil
		},
	}
	addCmd.Flags().StringVar(&id, "id", "", "Vehicle ID (generated when empty)")
	addCmd.Flags().StringVar(&plate, "plate", "", "Plate number")
	addCmd.Flags().StringVar(&name, "name", "", "Display name")
	addCmd.Flags().StringVar(&vehicleType, "type", "", "Vehicle type")

	cmd.AddCommand(listCmd, addCmd)
	return cmd
}
