package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/citeloop/internal/replay"
)

// #region main

func main() {
	logPath := flag.String("log", "", "path to an inference replay log (JSONL)")
	last := flag.Int("last", 0, "export only the N most recent records (0 = all)")
	decoding := flag.String("decoding", "direct_label", "decoding strategy the fixture replays with")
	desc := flag.String("description", "", "fixture description")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *logPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --log path/to/replay.jsonl --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*logPath, *last, *decoding, *desc, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(logPath string, last int, decoding, desc, outPath string) error {
	records, err := replay.FromReplayLog(logPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records in %s", logPath)
	}
	if last > 0 && last < len(records) {
		records = records[len(records)-last:]
	}
	if desc == "" {
		desc = fmt.Sprintf("exported from %s (%d records)", logPath, len(records))
	}

	f := &replay.Fixture{Description: desc, Decoding: decoding, Records: records}
	if err := f.Save(outPath); err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s\n", len(records), outPath)
	return nil
}

// #endregion export
