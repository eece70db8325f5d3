package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/store"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose system and configuration issues",
	Long: `Perform a diagnostic of the stagecal installation.

This command checks:
- System information
- Configuration file and validation
- Local store connectivity
- Zoho CRM OAuth settings
- Change feed sinks

Example:
  stagecal doctor --json`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// Check statuses.
const (
	checkOK   = "OK"
	checkWarn = "WARN"
	checkFail = "FAIL"
)

func runDoctor(cmd *cobra.Command, args []string) error {
	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		Checks:    collectSystemInfo(),
	}

	cfg, cfgCheck := checkConfigFile()
	report.Checks = append(report.Checks, cfgCheck)
	if cfg != nil {
		applyGlobalOverrides(cfg)
		report.Checks = append(report.Checks, checkStore(cmd.Context(), cfg.Store))
		report.Checks = append(report.Checks, checkConfiguration(cfg)...)
		report.Checks = append(report.Checks, checkChangeFeed(cfg.ChangeFeed)...)
	}
	report.Recommendations = generateRecommendations(report.Checks)

	return outputDoctorReport(cmd.OutOrStdout(), report)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	Checks          []DoctorCheck `json:"checks"`
	Recommendations []string      `json:"recommendations"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

func collectSystemInfo() []DoctorCheck {
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}
	return []DoctorCheck{
		{Category: "System", Name: "Operating System", Status: checkOK, Message: fmt.Sprintf("OS: %s (%s)", runtime.GOOS, runtime.GOARCH)},
		{Category: "System", Name: "Go Version", Status: checkOK, Message: fmt.Sprintf("Go: %s (CPUs: %d)", runtime.Version(), runtime.NumCPU())},
		{Category: "System", Name: "Working Directory", Status: checkOK, Message: fmt.Sprintf("Directory: %s", wd)},
	}
}

// checkConfigFile loads the configuration. A missing file is a warning
// because defaults plus environment still produce a working setup.
func checkConfigFile() (*config.Config, DoctorCheck) {
	check := DoctorCheck{Category: "Dependencies", Name: "Config File"}

	cfg, err := config.NewLoader(globalFlags.Config).Load()
	if err == nil {
		check.Status = checkOK
		check.Message = fmt.Sprintf("Config file loaded: %s", globalFlags.Config)
		return cfg, check
	}

	var notFound *errors.ErrConfigNotFound
	if stderrors.As(err, &notFound) {
		cfg, err = config.NewLoader(globalFlags.Config).LoadOrDefault()
		if err == nil {
			check.Status = checkWarn
			check.Severity = "low"
			check.Message = fmt.Sprintf("Config file not found (%s), using defaults and environment", globalFlags.Config)
			check.Remediation = "Create config.yaml or set STAGECAL_CONFIG_PATH"
			return cfg, check
		}
	}

	check.Status = checkFail
	check.Severity = "high"
	check.Message = fmt.Sprintf("Config invalid: %v", err)
	check.Remediation = "Review config.yaml and the environment for invalid values"
	return nil, check
}

func checkStore(ctx context.Context, cfg config.StoreConfig) DoctorCheck {
	check := DoctorCheck{Category: "Dependencies", Name: "Store"}

	st, err := store.Open(cfg)
	if err != nil {
		check.Status = checkFail
		check.Severity = "high"
		check.Message = fmt.Sprintf("Cannot open %s store: %v", cfg.Driver, err)
		check.Remediation = "Check store.path or store.dsn and that the database is reachable"
		return check
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	statuses, err := st.ListStatuses(ctx)
	if err != nil {
		check.Status = checkFail
		check.Severity = "high"
		check.Message = fmt.Sprintf("Store query failed: %v", err)
		check.Remediation = "Check database permissions and migrations"
		return check
	}

	check.Status = checkOK
	check.Message = fmt.Sprintf("%s store ready (%d statuses)", cfg.Driver, len(statuses))
	if cfg.Driver == config.DriverMemory {
		check.Status = checkWarn
		check.Severity = "medium"
		check.Message = "memory store: events and sessions are lost on restart"
		check.Remediation = "Use store.driver sqlite or postgres in production"
	}
	return check
}

func checkConfiguration(cfg *config.Config) []DoctorCheck {
	var checks []DoctorCheck

	if err := cfg.CRM.Ready(); err != nil {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Zoho OAuth",
			Status:      checkFail,
			Message:     fmt.Sprintf("OAuth client incomplete: %v", err),
			Severity:    "high",
			Remediation: "Set CLIENT_ID, CLIENT_SECRET and REDIRECT_URI or the crm section",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "Configuration",
			Name:     "Zoho OAuth",
			Status:   checkOK,
			Message:  fmt.Sprintf("Client %s via %s", cfg.CRM.ClientID, cfg.CRM.AccountsURL),
		})
	}

	if !cfg.CRM.VerifyState {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "OAuth State",
			Status:      checkWarn,
			Message:     "OAuth state verification is disabled",
			Severity:    "medium",
			Remediation: "Set crm.verify_state: true",
		})
	}

	auth := DoctorCheck{
		Category: "Configuration",
		Name:     "Local Auth",
		Status:   checkOK,
		Message:  fmt.Sprintf("Local event routes: %s", cfg.API.LocalAuth),
	}
	if cfg.API.LocalAuth == config.LocalAuthOptional {
		auth.Status = checkWarn
		auth.Severity = "low"
		auth.Remediation = "Anonymous clients can edit local events; set api.local_auth: required"
	}
	checks = append(checks, auth)

	if cfg.API.CORS.Enabled {
		switch {
		case len(cfg.API.CORS.Origins) == 0:
			checks = append(checks, DoctorCheck{
				Category:    "Configuration",
				Name:        "CORS",
				Status:      checkWarn,
				Message:     "No CORS origins configured, browser frontends on another origin are rejected",
				Severity:    "medium",
				Remediation: "List the frontend origins in api.cors.origins or ALLOWED_ORIGINS",
			})
		case slices.Contains(cfg.API.CORS.Origins, "*"):
			checks = append(checks, DoctorCheck{
				Category:    "Configuration",
				Name:        "CORS",
				Status:      checkWarn,
				Message:     "CORS allows every origin with credentials",
				Severity:    "high",
				Remediation: "Replace \"*\" with the frontend origins",
			})
		default:
			checks = append(checks, DoctorCheck{
				Category: "Configuration",
				Name:     "CORS",
				Status:   checkOK,
				Message:  fmt.Sprintf("%d allowed origin(s)", len(cfg.API.CORS.Origins)),
			})
		}
	}

	return checks
}

func checkChangeFeed(cfg config.ChangeFeedConfig) []DoctorCheck {
	var checks []DoctorCheck

	if cfg.NATS.URL == "" {
		checks = append(checks, DoctorCheck{Category: "Change Feed", Name: "NATS", Status: checkOK, Message: "disabled"})
	} else {
		check := DoctorCheck{Category: "Change Feed", Name: "NATS"}
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("stagecal-doctor"), nats.Timeout(3*time.Second))
		if err != nil {
			check.Status = checkFail
			check.Severity = "medium"
			check.Message = fmt.Sprintf("Cannot reach %s: %v", cfg.NATS.URL, err)
			check.Remediation = "Start the NATS server or clear changefeed.nats.url"
		} else {
			check.Status = checkOK
			check.Message = fmt.Sprintf("Connected to %s", nc.ConnectedUrlRedacted())
			nc.Close()
		}
		checks = append(checks, check)
	}

	if cfg.Telegram.Enabled {
		checks = append(checks, DoctorCheck{
			Category: "Change Feed",
			Name:     "Telegram",
			Status:   checkOK,
			Message:  fmt.Sprintf("Posting to chat %d", cfg.Telegram.ChatID),
		})
	}

	return checks
}

func generateRecommendations(checks []DoctorCheck) []string {
	recommendations := []string{}

	failCount := 0
	warnCount := 0

	for _, check := range checks {
		if check.Status == checkFail {
			failCount++
			if check.Remediation != "" {
				recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", check.Category, check.Name, check.Remediation))
			}
		}
		if check.Status == checkWarn {
			warnCount++
		}
	}

	if failCount == 0 && warnCount == 0 {
		recommendations = append(recommendations, "System is healthy. No recommendations needed.")
	} else if failCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Found %d critical issue(s) and %d warning(s). Please address the critical issues first.", failCount, warnCount))
	}

	return recommendations
}

func outputDoctorReport(out io.Writer, report DoctorReport) error {
	if globalFlags.JSON {
		return writeJSON(out, report)
	}
	return outputDoctorReportTable(out, report)
}

func outputDoctorReportTable(out io.Writer, report DoctorReport) error {
	fmt.Fprintln(out, "=== stagecal Doctor Report ===")
	fmt.Fprintf(out, "Generated: %s\n", report.Timestamp.Format(time.RFC3339))

	for _, category := range []string{"System", "Dependencies", "Configuration", "Change Feed"} {
		fmt.Fprintf(out, "\n--- %s ---\n", category)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, check := range report.Checks {
			if check.Category != category {
				continue
			}
			fmt.Fprintf(w, "%s %s:\t%s\n", statusIcon(check.Status), check.Name, check.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\n--- Recommendations ---")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(out, "• %s\n", rec)
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case checkFail:
		return "✗"
	case checkWarn:
		return "!"
	default:
		return "✓"
	}
}

