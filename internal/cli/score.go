package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-wisp/anti-phishing/internal/engine"
	"github.com/p-wisp/anti-phishing/internal/features"
	"github.com/p-wisp/anti-phishing/internal/scoring"
)

type scoreOutput struct {
	scoring.Verdict
	Features features.Record `json:"features,omitempty"`
}

func newScoreCmd() *cobra.Command {
	var (
		domFlags     []string
		htmlPath     string
		showFeatures bool
	)
	cmd := &cobra.Command{
		Use:   "score URL",
		Short: "Score a URL offline and print the verdict as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dom, err := parseDOMFlags(domFlags)
			if err != nil {
				return err
			}

			var page string
			if htmlPath != "" {
				page, err = readHTML(cmd, htmlPath)
				if err != nil {
					return err
				}
			}

			eng := engine.New(nil)
			out := scoreOutput{Verdict: eng.ScorePage(args[0], page, dom)}
			if showFeatures {
				out.Features = eng.Features(args[0], page, dom)
			}
			return printJSON(cmd, out)
		},
	}

	cmd.Flags().StringArrayVar(&domFlags, "dom", nil, "DOM feature override key=value (repeatable), e.g. --dom hidden_count=6")
	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML file of the page, or - for stdin")
	cmd.Flags().BoolVar(&showFeatures, "features", false, "Include the merged feature record")

	return cmd
}

func readHTML(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return string(b), nil
}

// parseDOMFlags turns key=value pairs into a Record. Values are integers,
// floats or booleans.
func parseDOMFlags(pairs []string) (features.Record, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	rec := make(features.Record, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --dom %q: want key=value", pair)
		}

		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.Set(features.Key(k), features.Int64(i))
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			rec.Set(features.Key(k), features.Float(f))
		} else if b, err := strconv.ParseBool(v); err == nil {
			rec.Set(features.Key(k), features.Bool(b))
		} else {
			return nil, fmt.Errorf("invalid --dom %q: value must be a number or boolean", pair)
		}
	}
	return rec, nil
}
