// Package flagx implements the pre-parsing the config pipeline needs:
// both binaries read an optional JSON config file named on the command
// line before their real flag handling runs, so the file flag has to
// be picked out without tripping over flags owned by other layers.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the allowed flag tokens from args, together
// with their values. A value is recognized either attached with '='
// or as the following argument when that argument does not itself
// start with a dash. Everything else, positionals included, is
// dropped, so the result is always safe to hand to a FlagSet that
// knows nothing about the rest of the command line.
func FilterArgs(args []string, allowed []string) []string {
	keep := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		keep[name] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") {
			if name, _, attached := strings.Cut(arg, "="); attached {
				if _, found := keep[name]; found {
					out = append(out, arg)
				}
				continue
			}
		}

		if _, found := keep[arg]; found {
			out = append(out, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				out = append(out, args[i+1])
				i++
			}
		}
	}
	return out
}

// JsonConfigFlags extracts the config file path named by -c or
// -config, in either single- or double-dash form, and ignores every
// other argument. Parsing runs in an isolated FlagSet so the caller's
// own flag handling, stdlib or urfave, is untouched. An absent flag
// yields the empty string.
func JsonConfigFlags() string {
	args := FilterArgs(os.Args[1:], []string{"-c", "--c", "-config", "--config"})

	var config string
	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "path to config file")
	fs.StringVar(&config, "c", "", "path to config file (short)")
	_ = fs.Parse(args)

	return config
}
