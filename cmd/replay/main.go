package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON (single fixture mode)")
	dir := flag.String("dir", "", "directory of fixture JSON files (suite mode)")
	minConf := flag.Float64("min-confidence", 0, "decoder confidence floor")
	flag.Parse()

	if (*fixturePath == "" && *dir == "") || (*fixturePath != "" && *dir != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --dir path/to/fixtures")
		os.Exit(2)
	}

	dec := decoder.New(decoder.Config{MinConfidence: *minConf})
	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, dec)
	} else {
		exitCode = runDirMode(*dir, dec)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runFixtureMode(path string, dec *decoder.Decoder) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	results, err := replay.Replay(f, dec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
		return 2
	}
	return printComparison(results)
}

func runDirMode(dir string, dec *decoder.Decoder) int {
	fixtures, paths, err := replay.LoadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		return 2
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "no fixtures in %s\n", dir)
		return 2
	}

	exitCode := 0
	for _, p := range paths {
		fmt.Printf("== %s (%s)\n", p, fixtures[p].Description)
		results, err := replay.Replay(fixtures[p], dec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", p, err)
			return 2
		}
		if code := printComparison(results); code > exitCode {
			exitCode = code
		}
		fmt.Println()
	}
	return exitCode
}

// #endregion modes

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.ReplayResult) int {
	fmt.Printf("%-14s| %-10s| %-10s| %-15s| %s\n", "Context", "Expected", "Replayed", "Source", "Match")
	fmt.Printf("%-14s+%-11s+%-11s+%-16s+%s\n",
		"--------------", "-----------", "-----------", "----------------", "------")

	for _, r := range results {
		match := "OK"
		switch r.Action {
		case replay.ActionMismatch:
			match = "DIFF " + r.Reason
		case replay.ActionError:
			match = "ERR " + r.Reason
		}
		fmt.Printf("%-14s| %-10s| %-10s| %-15s| %s\n", r.ContextID, r.Expected, r.Got, r.Source, match)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge, %d error\n", s.Total, s.Matches, s.Mismatches, s.Errors)

	if !s.OK() {
		return 1
	}
	return 0
}

// #endregion output
