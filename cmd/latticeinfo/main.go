// Command latticeinfo opens a lattice database file and prints its file
// size, storage summary, and node and edge counts. The file is opened
// read-write through db.Open (which creates and initializes it when it does
// not exist), and closing it writes a record-table checkpoint. It takes no subcommands;
// one binary, one job, in the style of the teacher's single-purpose
// cmd-version.go/cmd-dump-car.go root commands.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/latticedb/lattice/db"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <path-to-db-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	d, err := db.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer d.Close()

	if err := printInfo(d, path); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printInfo(d *db.DbImpl, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	fmt.Printf("lattice database: %s\n", path)
	fmt.Printf("  file size:   %s\n", humanize.Bytes(uint64(st.Size())))
	fmt.Printf("  storage:     %s\n", d.Storage())

	g := d.Graph()
	nodeCount, err := g.NodeCount()
	if err != nil {
		return fmt.Errorf("node count: %w", err)
	}
	edgeCount, err := g.EdgeCount()
	if err != nil {
		return fmt.Errorf("edge count: %w", err)
	}
	fmt.Printf("  nodes:       %s\n", humanize.Comma(nodeCount))
	fmt.Printf("  edges:       %s\n", humanize.Comma(edgeCount))

	return nil
}
