package cli

import (
	"github.com/picklr-io/provprobe/internal/logging"
	"github.com/picklr-io/provprobe/internal/state"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	logFormat   string
	region      string
	profile     string
	configFile  string
	configProps map[string]string
	ledgerPath  string
	noLedger    bool
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "provprobe",
	Short: "Provision, wait for and tear down cloud resources",
	Long: `provprobe creates a cloud resource, polls its control plane until the
resource reports ready (or the attempt budget runs out), and deletes it again.

Deletion is attempted on every path once creation has succeeded, including
describe failures and interrupts. Resources that outlive the process are
recorded in a ledger and can be removed later with 'provprobe cleanup'.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&region, "region", "", "AWS region (defaults to config file, then AWS_REGION, then us-east-1)")
	pf.StringVar(&profile, "profile", "", "AWS shared config profile")
	pf.StringVarP(&configFile, "config", "c", "", "Pkl probe configuration file")
	pf.StringToStringVarP(&configProps, "prop", "D", nil, "Set external properties for the config file (format: key=value)")
	pf.StringVar(&ledgerPath, "ledger", "", "Local ledger file (default "+state.DefaultLedgerPath+")")
	pf.BoolVar(&noLedger, "no-ledger", false, "Do not record in-flight resources")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(versionCmd)
}
