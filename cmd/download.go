package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swiftget/downloader"
	"swiftget/internal"
	"swiftget/utils"
)

var (
	optDirectory          string
	optOutput             string
	optContinue           bool
	optConnections        int
	optMaxSpeed           string
	optUserAgent          string
	optHeaders            []string
	optProxy              string
	optChecksum           string
	optQuiet              bool
	optProgress           bool
	optNoCheckCertificate bool
	optExtract            bool
)

var downloadCmd = &cobra.Command{
	Use:   "download [OPTIONS] <URL>...",
	Short: "Download one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&optDirectory, "directory", "d", "", "target directory (default: current directory)")
	downloadCmd.Flags().StringVarP(&optOutput, "output", "o", "", "output file name (only valid for a single URL)")
	downloadCmd.Flags().BoolVarP(&optContinue, "continue", "c", false, "resume a partially downloaded file")
	downloadCmd.Flags().IntVar(&optConnections, "connections", 0, "number of concurrent segments (0 = auto)")
	downloadCmd.Flags().StringVar(&optMaxSpeed, "max-speed", "", "overall bandwidth cap in bytes/sec, accepts K/M/G/T suffixes")
	downloadCmd.Flags().StringVar(&optUserAgent, "user-agent", "", "override the User-Agent header")
	downloadCmd.Flags().StringArrayVar(&optHeaders, "header", nil, "extra request header 'Key: Value' (repeatable)")
	downloadCmd.Flags().StringVar(&optProxy, "proxy", "", "proxy URL (http:// or socks5://)")
	downloadCmd.Flags().StringVar(&optChecksum, "checksum", "", "expected digest as ALG:HEX (md5|sha1|sha256)")
	downloadCmd.Flags().BoolVarP(&optQuiet, "quiet", "q", false, "suppress progress output and non-error logs")
	downloadCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose (debug-level) logging")
	downloadCmd.Flags().BoolVar(&optProgress, "progress", true, "show a progress bar")
	downloadCmd.Flags().Bool("no-progress", false, "hide the progress bar")
	downloadCmd.Flags().BoolVar(&optNoCheckCertificate, "no-check-certificate", false, "disable TLS certificate verification")
	downloadCmd.Flags().BoolVar(&optExtract, "extract", false, "unsupported: archive extraction is not implemented")
}

// runDownload drives one coordinator.Download per URL, continuing past a
// single URL's failure (§7: "multi-URL runs continue past a single URL
// failure; the aggregate exit is non-zero if any URL failed").
func runDownload(cmd *cobra.Command, args []string) error {
	if optExtract {
		return newExitError(2, fmt.Errorf("--extract is not supported: archive extraction is out of scope"))
	}
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		optProgress = false
	}
	if optOutput != "" && len(args) > 1 {
		return newExitError(2, fmt.Errorf("--output cannot be used with more than one URL"))
	}

	var maxBps int64
	if optMaxSpeed != "" {
		v, err := utils.ParseByteSize(optMaxSpeed)
		if err != nil {
			return newExitError(2, fmt.Errorf("invalid --max-speed: %w", err))
		}
		maxBps = v
	} else if appConfig.DefaultMaxSpeed > 0 {
		maxBps = appConfig.DefaultMaxSpeed
	}

	headers, err := parseHeaders(optHeaders)
	if err != nil {
		return newExitError(2, err)
	}

	var checksum *internal.ChecksumSpec
	if optChecksum != "" {
		checksum, err = downloader.ParseChecksumSpec(optChecksum)
		if err != nil {
			return newExitError(2, err)
		}
	}

	connections := optConnections
	if connections == 0 {
		connections = appConfig.DefaultConnections
	}

	userAgent := optUserAgent
	if userAgent == "" {
		userAgent = appConfig.DefaultUserAgent
	}

	directory := optDirectory
	if directory == "" {
		directory = appConfig.DefaultDirectory
	}
	if directory == "" {
		directory = "."
	}

	noCheckCert := optNoCheckCertificate || !appConfig.CheckCertificate

	bandwidth := downloader.NewBandwidthManager(maxBps)
	defer bandwidth.Close()
	policy := downloader.DefaultRetryPolicy()
	coordinator := downloader.NewCoordinator(bandwidth, logger, policy)

	copts := downloader.DefaultCoordinatorOptions()
	copts.Quiet = optQuiet
	copts.Verbose = flagVerbose
	copts.ShowProgress = optProgress && !optQuiet

	failures := 0
	exitCode := 0
	for _, rawURL := range args {
		task := &internal.URLTask{
			SourceURL:          rawURL,
			TargetPath:         resolveTargetPath(directory, optOutput, rawURL),
			Connections:        connections,
			MaxBytesPerSec:     maxBps,
			Checksum:           checksum,
			Resume:             optContinue,
			Headers:            headers,
			UserAgent:          userAgent,
			Priority:           internal.PriorityNormal,
			NoCheckCertificate: noCheckCert,
			ProxyURL:           optProxy,
		}

		summary, err := coordinator.Download(cmd.Context(), task, copts)
		if err != nil {
			failures++
			code := classifyExitCode(err)
			if exitCode == 0 {
				exitCode = code
			} else if exitCode != code {
				exitCode = 1
			}
			printDownloadError(rawURL, err)
			continue
		}
		printDownloadSummary(summary)
	}

	if failures > 0 {
		return newExitError(exitCode, fmt.Errorf("%d of %d downloads failed", failures, len(args)))
	}
	return nil
}

// classifyExitCode maps a Download() failure to §6's exit codes: 2 for
// misuse-shaped AppErrors, 5 for output-path, partial-file and resume-data
// AppErrors, 4 for a checksum mismatch, 3 for a transfer error the
// coordinator could not recover from, 1 otherwise.
func classifyExitCode(err error) int {
	switch e := err.(type) {
	case *internal.AppError:
		switch e.Kind {
		case internal.ErrOutputPathInvalid, internal.ErrPartialFileInvalid, internal.ErrResumeDataCorrupted:
			return 5
		default:
			return 2
		}
	case *downloader.ChecksumMismatchError:
		return 4
	case *internal.TransferError:
		return 3
	default:
		return 1
	}
}

// resolveTargetPath joins the directory and output name, falling back to a
// name derived from the URL path when -o is not given. Content-Disposition
// based naming happens only after the coordinator's own HEAD probe, so an
// output name chosen at this layer cannot consult it (see DESIGN.md).
func resolveTargetPath(directory, output, rawURL string) string {
	if output != "" {
		return filepath.Join(directory, output)
	}
	parsed, err := utils.ValidateDownloadURL(rawURL)
	if err != nil {
		return filepath.Join(directory, "download.bin")
	}
	return filepath.Join(directory, utils.DeriveFilename("", parsed))
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --header %q: expected 'Key: Value'", h)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid --header %q: empty key", h)
		}
		out[key] = val
	}
	return out, nil
}

func printDownloadSummary(s *internal.DownloadSummary) {
	if optQuiet {
		return
	}
	mode := "single-stream"
	if s.UsedParallel {
		mode = fmt.Sprintf("%d segments", s.SegmentsUsed)
	}
	line := fmt.Sprintf("%s -> %s (%s, %s, avg %s/s)",
		utils.RedactURL(s.URL), s.TargetPath, mode, utils.FormatBytes(s.TotalBytes), utils.FormatBytes(int64(s.AverageBps)))
	if s.ChecksumOK != nil {
		if *s.ChecksumOK {
			line += ", checksum OK"
		} else {
			line += ", checksum FAILED"
		}
	}
	color.Green(line)
}

func printDownloadError(rawURL string, err error) {
	color.Red("failed: %s: %v", utils.RedactURL(rawURL), err)
}
