// Command decode replays a packet capture of drone control traffic and
// reports the stick movements and commands it contains.
//
// The capture must be a classic .pcap (tshark -w session.pcap) holding
// IP/UDP packets; 802.11-only captures need to be decoded to IP first.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/banshee-data/dronetrace/internal/capture"
	"github.com/banshee-data/dronetrace/internal/db"
	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/monitoring"
	"github.com/banshee-data/dronetrace/internal/rc"
	"github.com/banshee-data/dronetrace/internal/report"
	"github.com/banshee-data/dronetrace/internal/session"
	"github.com/banshee-data/dronetrace/internal/version"
)

var (
	pcapFile   = flag.String("pcap", "", "Path to capture file (required)")
	configFile = flag.String("config", "", "Optional JSON config overriding frame-format defaults")

	port     = flag.Int("port", rc.DefaultTargetPort, "UDP control port")
	deadband = flag.Int("deadband", rc.DefaultDeadband, "Neutral deadband threshold")
	debounce = flag.Float64("debounce", rc.DefaultDebounceSeconds, "Debounce time in seconds")
	checksum = flag.Bool("verify-checksum", false, "Verify the frame checksum byte")

	maxPackets = flag.Int("max", 0, "Max packets to process (0 = no limit)")
	showFirst  = flag.Int("show-first", 0, "Log first N decoded frames for debugging")
	quiet      = flag.Bool("quiet", false, "Suppress per-frame diagnostics")

	jsonOut = flag.String("json", "", "Write summary JSON to this path")
	csvOut  = flag.String("csv", "", "Write event log CSV to this path")
	htmlOut = flag.String("html", "", "Write HTML report to this path")
	dbPath  = flag.String("db", "", "Record the session into this sqlite database")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("decode", version.String())
		return
	}
	if *pcapFile == "" {
		flag.Usage()
		log.Fatal("-pcap is required")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	pipeline, err := session.NewPipeline(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	pipeline.MaxPackets = *maxPackets
	pipeline.ShowFirst = *showFirst

	src, err := capture.OpenPCAP(*pcapFile, cfg.TargetPort)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer src.Close()

	summary, runErr := pipeline.Run(src)
	if runErr != nil {
		if summary == nil {
			log.Fatalf("Decode failed: %v", runErr)
		}
		// An ordering violation aborts the run but the partial summary is
		// still valid for everything processed before it.
		log.Printf("Decode aborted: %v (reporting partial session)", runErr)
	}

	if summary.ControlFrames == 0 && summary.BootFrames == 0 {
		log.Println("No control frames found.")
		log.Println("Tips:")
		log.Println("- confirm the capture contains IP/UDP packets (capture with: tshark -I -i wlan0mon ... -w session.pcap)")
		log.Println("- try a different -port if your drone does not use 8800")
		os.Exit(2)
	}

	printSummary(cfg, summary)

	if err := export(cfg, summary); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// buildConfig merges the optional JSON config file with the tuning flags.
// Flags win over the file for the knobs they cover.
func buildConfig() (rc.Config, error) {
	cfg := rc.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = rc.LoadConfigFile(*configFile)
		if err != nil {
			return rc.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.TargetPort = *port
		case "deadband":
			cfg.Deadband = *deadband
		case "debounce":
			cfg.DebounceSeconds = *debounce
		case "verify-checksum":
			cfg.VerifyChecksum = *checksum
		}
	})

	return cfg, cfg.Validate()
}

func printSummary(cfg rc.Config, sum *session.Summary) {
	fmt.Printf("Decoded control frames: %d\n", sum.ControlFrames)
	fmt.Printf("UDP port: %d\n", cfg.TargetPort)
	fmt.Printf("Deadband: +/-%d around 0x%02x\n", cfg.Deadband, cfg.Neutral)
	fmt.Printf("Debounce: %.2fs\n", cfg.DebounceSeconds)
	if sum.InvalidFrames > 0 || sum.DecodeErrors > 0 {
		fmt.Printf("Skipped: %d invalid frames, %d decode errors\n", sum.InvalidFrames, sum.DecodeErrors)
	}
	if sum.ChecksumErrors > 0 {
		fmt.Printf("Checksum mismatches: %d\n", sum.ChecksumErrors)
	}
	fmt.Println()

	for _, label := range sum.OrderedLabels() {
		fmt.Printf("%-16s x%d\n", label, sum.Counts[label])
	}
	fmt.Println()

	for _, e := range sum.Events {
		switch e.Kind {
		case infer.KindMovement:
			suffix := ""
			if e.TruncatedAtEOF {
				suffix = " (truncated at eof)"
			}
			fmt.Printf("  %8.3f  %-16s %.2fs%s\n", e.Start-sum.FirstTimestamp, e.Label, e.Duration(), suffix)
		default:
			fmt.Printf("  %8.3f  %s\n", e.Start-sum.FirstTimestamp, e.Label)
		}
	}
}

func export(cfg rc.Config, sum *session.Summary) error {
	if *jsonOut != "" {
		if err := writeJSON(*jsonOut, sum); err != nil {
			return err
		}
		log.Printf("Wrote summary JSON to %s", *jsonOut)
	}
	if *csvOut != "" {
		if err := writeCSV(*csvOut, sum); err != nil {
			return err
		}
		log.Printf("Wrote event CSV to %s", *csvOut)
	}
	if *htmlOut != "" {
		f, err := os.Create(*htmlOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *htmlOut, err)
		}
		defer f.Close()
		if err := report.WriteHTML(f, *pcapFile, sum); err != nil {
			return err
		}
		log.Printf("Wrote HTML report to %s", *htmlOut)
	}
	if *dbPath != "" {
		store, err := db.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		sessionID, err := store.RecordSession(*pcapFile, cfg, sum)
		if err != nil {
			return err
		}
		log.Printf("Recorded session %s in %s", sessionID, *dbPath)
	}
	return nil
}

func writeJSON(path string, sum *session.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

func writeCSV(path string, sum *session.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"kind", "label", "start", "end", "duration_secs", "truncated_at_eof"}); err != nil {
		return err
	}
	for _, e := range sum.Events {
		record := []string{
			string(e.Kind),
			e.Label,
			strconv.FormatFloat(e.Start, 'f', 6, 64),
			strconv.FormatFloat(e.End, 'f', 6, 64),
			strconv.FormatFloat(e.Duration(), 'f', 3, 64),
			strconv.FormatBool(e.TruncatedAtEOF),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
