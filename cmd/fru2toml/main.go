// Command fru2toml converts between binary FRU images and the TOML-like
// text form. Direction follows the input: an image (first byte 0x01)
// converts to text, anything else parses as text and converts to an image.
package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"example.com/frugate/internal/fru"
	"example.com/frugate/internal/frutoml"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fru2toml: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	inPath, outPath := "", ""
	switch len(args) {
	case 0:
	case 1:
		if args[0] == "-h" || args[0] == "--help" {
			usage()
			return nil
		}
		if args[0] == "--version" {
			fmt.Printf("fru2toml %s (built %s)\n", version, buildDate)
			return nil
		}
		inPath = args[0]
	case 2:
		inPath, outPath = args[0], args[1]
	default:
		usage()
		return fmt.Errorf("too many arguments")
	}

	input, err := readInput(inPath)
	if err != nil {
		return err
	}
	if len(input) == 0 {
		return fmt.Errorf("empty input")
	}

	log := fru.StderrLogger()
	if input[0] == 0x01 {
		dec := fru.Decoder{Log: log}
		doc, err := dec.Decode(input)
		if err != nil {
			return err
		}
		text, err := frutoml.Marshal(doc)
		if err != nil {
			return err
		}
		return writeOutput(outPath, text, false)
	}
	doc, err := frutoml.Unmarshal(input)
	if err != nil {
		return err
	}
	enc := fru.Encoder{Log: log}
	img, err := enc.Encode(doc)
	if err != nil {
		return err
	}
	return writeOutput(outPath, img, true)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte, binary bool) error {
	if path == "" || path == "-" {
		if binary && term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("refusing to write a binary image to a terminal; redirect stdout or name an output file")
		}
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func usage() {
	fmt.Printf(`fru2toml %s (built %s) [INPUTFILE [OUTPUTFILE]]

Converts a binary FRU image to the text form, or the text form back to a
binary image. With no arguments it reads stdin and writes stdout; "-"
stands for either stream.
`, version, buildDate)
}
