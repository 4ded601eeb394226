// Command roll rolls dice formulas and random tables from the terminal using
// the same rules as the Taverna server.
//
//	roll 2d6+3 1d20
//	roll -n 4 4d6
//	roll --table wild-magic.json
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/icco/taverna"
)

type options struct {
	Table flags.Filename `short:"t" long:"table" description:"JSON file with a random table to roll on"`
	Times int            `short:"n" long:"times" default:"1" description:"How many times to roll each formula"`
	JSON  bool           `long:"json" description:"Print results as JSON lines"`

	Args struct {
		Formulas []string `positional-arg-name:"formula" description:"Dice formulas like 2d6+3"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	r, err := taverna.NewRoller()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(opts, r, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "roll: %s\n", taverna.MessageOf(err))
		os.Exit(1)
	}
}

func run(opts options, r taverna.Roller, out io.Writer) error {
	if opts.Times < 1 || opts.Times > taverna.MaxDiceCount {
		return taverna.Invalid("times must be between 1 and %d", taverna.MaxDiceCount)
	}
	if opts.Table == "" && len(opts.Args.Formulas) == 0 {
		return taverna.Invalid("nothing to roll: give a formula or --table")
	}

	if opts.Table != "" {
		table, err := loadTable(string(opts.Table))
		if err != nil {
			return err
		}
		for i := 0; i < opts.Times; i++ {
			res, err := taverna.RollTable(r, table)
			if err != nil {
				return err
			}
			if err := printTable(out, opts.JSON, res); err != nil {
				return err
			}
		}
	}

	for _, s := range opts.Args.Formulas {
		f, err := taverna.ParseFormula(s)
		if err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
		for i := 0; i < opts.Times; i++ {
			if err := printRoll(out, opts.JSON, taverna.Roll(r, f)); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadTable reads a JSON array of table entries and validates each one.
func loadTable(path string) ([]taverna.TableEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var table []taverna.TableEntry
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, taverna.Wrap(taverna.KindValidation, "table must be a JSON array of {min, max, result}", err)
	}
	for i := range table {
		if err := taverna.Validate(table[i]); err != nil {
			return nil, taverna.Invalid("entry %d: %s", i+1, taverna.MessageOf(err))
		}
	}
	return table, nil
}

func printRoll(out io.Writer, asJSON bool, res taverna.RollResult) error {
	if asJSON {
		return json.NewEncoder(out).Encode(res)
	}

	faces := make([]string, len(res.Rolls))
	for i, v := range res.Rolls {
		faces[i] = fmt.Sprint(v)
	}
	line := fmt.Sprintf("%s: [%s]", res.Formula, strings.Join(faces, ", "))
	if res.Modifier != 0 {
		line += fmt.Sprintf(" %+d", res.Modifier)
	}
	_, err := fmt.Fprintf(out, "%s = %d\n", line, res.Total)
	return err
}

func printTable(out io.Writer, asJSON bool, res taverna.TableResult) error {
	if asJSON {
		return json.NewEncoder(out).Encode(res)
	}

	result := "no entry"
	if res.Matched {
		result = res.Entry.Result
	}
	_, err := fmt.Fprintf(out, "1d%d: %d -> %s\n", res.Die, res.Roll, result)
	return err
}
