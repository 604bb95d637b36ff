package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

var (
	searchLanguage string
	searchLimit    int
	searchMode     string
	searchSmart    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the local pattern library",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "Restrict to a language")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum results")
	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "Ranking mode: lexical, semantic, or hybrid")
	searchCmd.Flags().BoolVar(&searchSmart, "smart", false, "Use smartSearch: intent parsing, spelling correction, cross-language fallback")
}

func runSearch(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	opts := search.Options{
		Limit:    searchLimit,
		Language: types.Language(searchLanguage),
		Mode:     search.Mode(searchMode),
	}

	if searchSmart {
		smart, err := o.searchEng.SmartSearch(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("smart search: %w", err)
		}
		return printResult(os.Stdout, smart, func() {
			for _, c := range smart.Corrections {
				fmt.Printf("corrected %q -> %q\n", c.Original, c.Corrected)
			}
			if len(smart.Intent.Intents) > 0 {
				fmt.Print("intents:")
				for _, in := range smart.Intent.Intents {
					fmt.Printf(" %s(%.2f)", in.Name, in.Confidence)
				}
				fmt.Println()
			}
			if len(smart.Results) == 0 {
				fprintln(os.Stdout, "no matches")
				if len(smart.Suggestions) > 0 {
					fmt.Printf("did you mean: %v\n", smart.Suggestions)
				}
				return
			}
			for _, r := range smart.Results {
				fmt.Printf("%-30s %-8s  ranked=%.3f  blended=%.3f  %s\n",
					r.Pattern.Name, r.Pattern.Language, r.RankedScore, r.BlendedScore, r.Pattern.Description)
			}
		})
	}

	results, err := o.searchEng.Search(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	return printResult(os.Stdout, results, func() {
		if len(results) == 0 {
			fprintln(os.Stdout, "no matches")
			return
		}
		for _, r := range results {
			fmt.Printf("%-30s %-8s  ranked=%.3f  blended=%.3f  %s\n",
				r.Pattern.Name, r.Pattern.Language, r.RankedScore, r.BlendedScore, r.Pattern.Description)
		}
	})
}
