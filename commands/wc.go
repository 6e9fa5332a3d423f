package commands

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/josephlewis42/npcsh/core/vars"
)

type wcCount struct {
	bytes int
	lines int
	chars int
	words int
	name  string

	inSpace bool
}

func (w *wcCount) Write(data []byte) (int, error) {
	for _, c := range data {
		isFirstByte := w.bytes == 0
		w.bytes++

		// Assume UTF-8 characters. Bytes following the leading byte always
		// have MSB of 0b10 indicating they're part of a previous character.
		if c < 0b10000000 || c > 0b10111111 {
			w.chars++
		}

		if c == '\n' {
			w.lines++
		}

		if unicode.IsSpace(rune(c)) {
			w.inSpace = true
		} else {
			if w.inSpace || isFirstByte {
				w.words++
			}
			w.inSpace = false
		}
	}

	return len(data), nil
}

// Add counts v the way the terminal would display it: one line per value.
func (w *wcCount) Add(v any) {
	s := vars.String(v)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	w.Write([]byte(s))
}

func (w *wcCount) Increment(other *wcCount) {
	w.bytes += other.bytes
	w.chars += other.chars
	w.lines += other.lines
	w.words += other.words
}

// Wc counts the lines, words and bytes of values.
// https://pubs.opengroup.org/onlinepubs/009695399/utilities/wc.html
func Wc(c *shell.Call) iter.Seq2[any, error] {
	cmd := &SimpleCommand{
		Use:   "wc [-c|-m] [-lw] [PATH...]",
		Short: "Write the number of newlines, words, and bytes contained in each input to the standard output.",
	}

	opts := cmd.Flags()
	writeLines := opts.BoolLong("l", 'l', "write the number of newlines in each input")
	writeWords := opts.BoolLong("w", 'w', "write the number of words in each input")
	writeBytes := opts.BoolLong("c", 'c', "write the number of bytes in each input")
	writeChars := opts.BoolLong("m", 'm', "write the number of characters in each input")

	return cmd.Run(c, func(yield func(any) bool) error {
		args := opts.Args()

		anyPicked := *writeLines || *writeWords || *writeBytes || *writeChars
		nonePicked := !anyPicked

		var cols []func(*wcCount) string

		if *writeLines || nonePicked {
			cols = append(cols, func(w *wcCount) string {
				return fmt.Sprint(w.lines)
			})
		}
		if *writeWords || nonePicked {
			cols = append(cols, func(w *wcCount) string {
				return fmt.Sprint(w.words)
			})
		}
		if *writeBytes || nonePicked {
			cols = append(cols, func(w *wcCount) string {
				return fmt.Sprint(w.bytes)
			})
		}
		if *writeChars {
			cols = append(cols, func(w *wcCount) string {
				return fmt.Sprint(w.chars)
			})
		}
		if len(args) > 0 {
			cols = append(cols, func(w *wcCount) string {
				return w.name
			})
		}

		displayCount := func(count *wcCount) bool {
			row := make([]string, len(cols))
			for i, col := range cols {
				row[i] = col(count)
			}
			return yield(strings.Join(row, " "))
		}

		var counts []*wcCount
		err := cmd.RunEachPathOrStdin(c, args, func(name string, v any) bool {
			if len(counts) == 0 || counts[len(counts)-1].name != name {
				counts = append(counts, &wcCount{name: name})
			}
			counts[len(counts)-1].Add(v)
			return true
		})
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			counts = append(counts, &wcCount{})
		}

		total := &wcCount{name: "total"}
		for _, count := range counts {
			total.Increment(count)
			if !displayCount(count) {
				return nil
			}
		}
		if len(counts) > 1 {
			displayCount(total)
		}
		return nil
	})
}

var _ shell.Builtin = Wc

func init() {
	mustAddBuiltin(Wc, "wc")
}
