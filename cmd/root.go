package cmd

import (
	"github.com/spf13/cobra"

	"swiftget/internal"
)

// ExitError carries the process exit code a failed command should report
// (§6: 0 success, 1 generic failure, 2 misuse, 3 network exhaustion, 4
// checksum mismatch, 5 I/O/disk failure), generalizing the teacher's plain
// error-returning RunE so main can map failures to the documented codes.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func newExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// appConfig and logger are wired in PersistentPreRunE, shared by every
// subcommand's RunE, matching the teacher's package-level config/logger
// wiring in cmd/root.go.
var (
	appConfig *internal.Config
	logger    *internal.SecureLogger

	flagDebug   bool
	flagVerbose bool
	flagLogFile string
)

var rootCmd = &cobra.Command{
	Use:           "swiftget",
	Short:         "A segmented HTTP/HTTPS download manager",
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `swiftget is a CLI download manager that splits large HTTP/HTTPS
transfers into concurrent byte-range segments, retries and redistributes
failed segments, and verifies content against an optional checksum.

Examples:
  swiftget download https://example.com/file.iso
  swiftget download -o out.bin --connections 8 --max-speed 5M https://example.com/file.iso
  swiftget download --continue https://example.com/file.iso
  swiftget config --show`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appConfig = internal.DefaultConfig()

		if cfgPath, err := internal.PersistentConfigPath(); err == nil {
			if m, err := internal.LoadPersistentConfig(cfgPath); err == nil {
				internal.ApplyPersistentConfig(appConfig, m)
			}
		}
		appConfig.LoadFromEnv()

		if flagDebug {
			appConfig.EnableDebug = true
			appConfig.LogLevel = "debug"
		}
		if flagLogFile != "" {
			appConfig.LogFile = flagLogFile
		}
		if err := appConfig.ValidateConfig(); err != nil {
			return newExitError(2, err)
		}
		if flagVerbose {
			appConfig.EnableDebug = true
		}

		if err := internal.InitLogger(appConfig); err != nil {
			return newExitError(5, err)
		}
		logger = internal.GetLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging with file/line info")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to a file instead of stderr")
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command and returns an error that may be an
// *ExitError carrying the process exit code to use.
func Execute() error {
	return rootCmd.Execute()
}
