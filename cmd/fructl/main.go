// Command fructl works with FRU inventory data: it converts between the
// binary image and the text forms, and renders inventory sheets.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"example.com/frugate/internal/fru"
	"example.com/frugate/internal/frutoml"
	"example.com/frugate/internal/fruyaml"
	"example.com/frugate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "convert":
		convertCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "version":
		fmt.Printf("fructl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`fructl %s (built %s) <command> [options]

Commands:
  convert  --in <file> [--out <file>] [--format toml|yaml] [--quiet]
  report   --in <file> --out <inventory.pdf> [--format toml|yaml]
  version
`, version, buildDate)
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	inPath := fs.String("in", "", "input file (image or text), - for stdin")
	outPath := fs.String("out", "", "output file, - for stdout")
	format := fs.String("format", "toml", "text form dialect: toml or yaml")
	quiet := fs.Bool("quiet", false, "suppress decoder and encoder warnings")
	fs.Parse(args)

	input, err := loadInput(*inPath)
	if err != nil {
		fail("%v", err)
	}
	log := fru.StderrLogger()
	if *quiet {
		log = fru.NopLogger()
	}

	var out []byte
	var binary bool
	if input[0] == 0x01 {
		dec := fru.Decoder{Log: log}
		doc, err := dec.Decode(input)
		if err != nil {
			fail("%v", err)
		}
		out, err = marshalText(doc, *format)
		if err != nil {
			fail("%v", err)
		}
	} else {
		doc, err := unmarshalText(input, *format)
		if err != nil {
			fail("%v", err)
		}
		enc := fru.Encoder{Log: log}
		out, err = enc.Encode(doc)
		if err != nil {
			fail("%v", err)
		}
		binary = true
	}
	if err := writeOutput(*outPath, out, binary); err != nil {
		fail("%v", err)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	inPath := fs.String("in", "", "input file (image or text), - for stdin")
	outPath := fs.String("out", "", "output inventory PDF")
	format := fs.String("format", "toml", "text form dialect: toml or yaml")
	fs.Parse(args)

	if *outPath == "" {
		fail("report requires --out")
	}
	input, err := loadInput(*inPath)
	if err != nil {
		fail("%v", err)
	}
	var doc *fru.Document
	if input[0] == 0x01 {
		dec := fru.Decoder{Log: fru.StderrLogger()}
		doc, err = dec.Decode(input)
	} else {
		doc, err = unmarshalText(input, *format)
	}
	if err != nil {
		fail("%v", err)
	}
	if err := report.SaveInventoryPDF(doc, *outPath); err != nil {
		fail("write pdf: %v", err)
	}
	fmt.Println("Wrote PDF:", *outPath)
}

func marshalText(doc *fru.Document, format string) ([]byte, error) {
	switch format {
	case "toml":
		return frutoml.Marshal(doc)
	case "yaml":
		return fruyaml.Marshal(doc)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func unmarshalText(input []byte, format string) (*fru.Document, error) {
	switch format {
	case "toml":
		return frutoml.Unmarshal(input)
	case "yaml":
		return fruyaml.Unmarshal(input)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func loadInput(path string) ([]byte, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return data, nil
}

func writeOutput(path string, data []byte, binary bool) error {
	if path == "" || path == "-" {
		if binary && term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("refusing to write a binary image to a terminal; redirect stdout or use --out")
		}
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "fructl: "+format+"\n", args...)
	os.Exit(1)
}
