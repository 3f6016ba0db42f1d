package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/orchestrator"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// #region main

func main() {
	errorsDir := flag.String("errors-dir", logging.DefaultErrorsDir, "error log directory")
	corrections := flag.String("corrections", refinement.DefaultCorrectionLogPath, "corrections JSONL")
	dbPath := flag.String("db", "", "outcome database (optional)")
	last := flag.Int("last", 10, "show N most recent errors")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	rep, err := collect(*errorsDir, *corrections, *dbPath, *last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *jsonOut {
		err = printJSON(rep)
	} else {
		printReport(rep)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region collect

type correctionStats struct {
	Total    int     `json:"total"`
	Accepted int     `json:"accepted"`
	Rejected int     `json:"rejected"`
	AvgDelta float64 `json:"avg_delta"`
}

type strategyRow struct {
	Strategy      string  `json:"strategy"`
	Total         int     `json:"total"`
	NeedsReview   int     `json:"needs_review"`
	Corrected     int     `json:"corrected"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type report struct {
	ErrorCounts  map[logging.ErrorType]int `json:"error_counts"`
	MirrorCounts map[logging.ErrorType]int `json:"mirror_counts,omitempty"`
	Recent       []logging.ErrorRecord     `json:"recent"`
	Corrections  correctionStats           `json:"corrections"`
	Strategies   []strategyRow             `json:"strategies,omitempty"`
}

func collect(errorsDir, correctionsPath, dbPath string, last int) (report, error) {
	var rep report

	storage, err := logging.NewStorage(errorsDir)
	if err != nil {
		return rep, err
	}
	q := logging.NewQuery(storage)
	all, err := q.Load()
	if err != nil {
		return rep, err
	}
	rep.ErrorCounts = make(map[logging.ErrorType]int)
	for _, r := range all {
		rep.ErrorCounts[r.ErrorType]++
	}
	if last > 0 && len(all) > last {
		all = all[len(all)-last:]
	}
	rep.Recent = all

	props, err := refinement.LoadCorrections(correctionsPath)
	if err != nil {
		return rep, err
	}
	rep.Corrections = summarizeCorrections(props)

	if dbPath == "" {
		return rep, nil
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return rep, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := logging.EnsureMirror(db); err != nil {
		return rep, err
	}
	if rep.MirrorCounts, err = logging.MirrorCounts(db); err != nil {
		return rep, err
	}
	memory, err := orchestrator.NewOutcomeMemory(db)
	if err != nil {
		return rep, err
	}
	stats, err := memory.Stats()
	if err != nil {
		return rep, err
	}
	for id, s := range stats {
		rep.Strategies = append(rep.Strategies, strategyRow{
			Strategy:      string(id),
			Total:         s.Total,
			NeedsReview:   s.NeedsReview,
			Corrected:     s.Corrected,
			AvgConfidence: s.AvgConfidence,
		})
	}
	slices.SortFunc(rep.Strategies, func(a, b strategyRow) int {
		if a.Strategy < b.Strategy {
			return -1
		}
		if a.Strategy > b.Strategy {
			return 1
		}
		return 0
	})
	return rep, nil
}

func summarizeCorrections(props []refinement.CorrectionProposal) correctionStats {
	s := correctionStats{Total: len(props)}
	var sum float64
	for _, p := range props {
		if p.Accepted {
			s.Accepted++
		} else {
			s.Rejected++
		}
		sum += p.ConfidenceDelta
	}
	if s.Total > 0 {
		s.AvgDelta = sum / float64(s.Total)
	}
	return s
}

// #endregion collect

// #region output

func printReport(rep report) {
	fmt.Printf("%-22s  %6s  %6s\n", "Error type", "Log", "Mirror")
	fmt.Printf("%-22s+-%6s+-%6s\n", "----------------------", "------", "------")
	for _, t := range logging.ErrorTypes {
		mirror := "-"
		if rep.MirrorCounts != nil {
			mirror = fmt.Sprintf("%d", rep.MirrorCounts[t])
		}
		fmt.Printf("%-22s  %6d  %6s\n", t, rep.ErrorCounts[t], mirror)
	}

	if len(rep.Recent) > 0 {
		fmt.Printf("\nRecent errors:\n")
		for _, r := range rep.Recent {
			fmt.Printf("  %s  %-10s  %-20s  %s\n", shortID(r.ErrorID), r.ContextID, r.ErrorType, r.Reason)
		}
	}

	c := rep.Corrections
	fmt.Printf("\nCorrections: %d total, %d accepted, %d rejected, avg delta %+.4f\n",
		c.Total, c.Accepted, c.Rejected, c.AvgDelta)

	if len(rep.Strategies) > 0 {
		fmt.Printf("\n%-10s  %6s  %8s  %9s  %8s\n", "Strategy", "Total", "Review", "Corrected", "AvgConf")
		for _, s := range rep.Strategies {
			fmt.Printf("%-10s  %6d  %8d  %9d  %8.4f\n", s.Strategy, s.Total, s.NeedsReview, s.Corrected, s.AvgConfidence)
		}
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// shortID drops the err_ prefix and keeps eight hex characters.
func shortID(id string) string {
	if len(id) > 12 {
		return id[4:12]
	}
	return id
}

// #endregion output
