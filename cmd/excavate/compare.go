package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/excavate/internal/config"
	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/report"
	"github.com/spf13/cobra"
)

// minScanIDPrefix is the shortest scan ID prefix accepted on the command line.
const minScanIDPrefix = 4

var (
	// errNoPreviousScan is returned when a scan has no earlier scan of the same targets.
	errNoPreviousScan = errors.New("no previous scan of the same targets")

	// errAmbiguousScanID is returned when a prefix matches more than one scan.
	errAmbiguousScanID = errors.New("ambiguous scan ID")
)

// NewCompareCmd creates the compare command.
// This command compares the events of two scans stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [base-scan] [other-scan]",
		Short: "Compare the events of stored scans",
		Long: `Compare shows which events appeared and disappeared between two scans
stored with 'excavate scan --save'.

With two scan IDs the first is the base. With one scan ID it is compared
against the previous scan of the same targets. Without arguments the latest
scan is compared against its previous scan. Unique ID prefixes of at least
four characters are accepted.

Examples:
  # List stored scans
  excavate compare --list

  # Compare the latest scan with the one before it
  excavate compare

  # Compare two scans
  excavate compare 3f2a9c1e 7b41d0aa

  # Output the comparison as JSON
  excavate compare --json 7b41d0aa`,
		Args: cobra.MaximumNArgs(2),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List stored scans")
	cmd.Flags().String("db-dir", "",
		"Event database directory (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listScans, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// Comparing never creates a database.
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	store, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	scans, err := store.Scans(ctx)
	if err != nil {
		return err
	}

	if listScans {
		writeScanList(out, scans)
		return nil
	}

	baseID, otherID, err := selectScans(scans, args)
	if err != nil {
		return err
	}

	comparison, err := store.CompareScans(ctx, baseID, otherID)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.WriteComparison(comparison)
	return err
}

// selectScans picks the base and other scan IDs from the arguments.
// scans must be ordered newest first.
func selectScans(scans []*database.Scan, args []string) (string, string, error) {
	switch len(args) {
	case 2:
		base, err := resolveScanID(scans, args[0])
		if err != nil {
			return "", "", err
		}
		other, err := resolveScanID(scans, args[1])
		if err != nil {
			return "", "", err
		}
		return base.ID, other.ID, nil
	case 1:
		other, err := resolveScanID(scans, args[0])
		if err != nil {
			return "", "", err
		}
		base, err := previousScan(scans, other)
		if err != nil {
			return "", "", err
		}
		return base.ID, other.ID, nil
	default:
		if len(scans) == 0 {
			return "", "", database.ErrScanNotFound
		}
		base, err := previousScan(scans, scans[0])
		if err != nil {
			return "", "", err
		}
		return base.ID, scans[0].ID, nil
	}
}

// resolveScanID finds the scan whose ID is id or starts with it.
func resolveScanID(scans []*database.Scan, id string) (*database.Scan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	var found *database.Scan
	for _, s := range scans {
		if s.ID == id {
			return s, nil
		}
		if len(id) >= minScanIDPrefix && strings.HasPrefix(s.ID, id) {
			if found != nil {
				return nil, fmt.Errorf("%w: %s", errAmbiguousScanID, id)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", database.ErrScanNotFound, id)
	}
	return found, nil
}

// previousScan returns the newest scan older than s with the same targets.
func previousScan(scans []*database.Scan, s *database.Scan) (*database.Scan, error) {
	for _, candidate := range scans {
		if candidate.ID == s.ID || !candidate.StartedAt.Before(s.StartedAt) {
			continue
		}
		if slices.Equal(candidate.Targets, s.Targets) {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errNoPreviousScan, s.ID)
}

// writeScanList prints one line per stored scan.
func writeScanList(w io.Writer, scans []*database.Scan) {
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans stored.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %7s  %s\n", "ID", "STARTED", "EVENTS", "TARGETS")
	for _, s := range scans {
		fmt.Fprintf(w, "%-36s  %-19s  %7d  %s\n",
			s.ID,
			s.StartedAt.Local().Format(time.DateTime),
			s.EventCount,
			strings.Join(s.Targets, ", "),
		)
	}
}
