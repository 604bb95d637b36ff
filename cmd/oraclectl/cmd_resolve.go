package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remembrance-oracle/oracle-core/internal/resolver"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

var (
	resolveLanguage string
	resolveTags     string
	resolveHeal     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [description]",
	Short: "Run the PULL/EVOLVE/GENERATE decision for a description",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveLanguage, "language", "", "Requested language")
	resolveCmd.Flags().StringVar(&resolveTags, "tags", "", "Comma-separated tags")
	resolveCmd.Flags().BoolVar(&resolveHeal, "heal", false, "Run the reflector healing loop on an EVOLVE decision")
}

func runResolve(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	req := resolver.Request{
		Description: args[0],
		Language:    types.Language(resolveLanguage),
		Heal:        resolveHeal,
	}
	if resolveTags != "" {
		req.Tags = strings.Split(resolveTags, ",")
	}

	var result resolver.Result
	if resolveHeal {
		result, err = o.resolve.ResolveAndHeal(ctx, req, o.reflect, cfg.Reflect.Target)
	} else {
		result, err = o.resolve.Resolve(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	return printResult(os.Stdout, result, func() {
		fmt.Printf("decision: %s (confidence %.3f)\n", result.Decision, result.Confidence)
		fmt.Printf("reasoning: %s\n", result.Reasoning)
		if result.Pattern != nil {
			fmt.Printf("pattern: %s (%s)\n", result.Pattern.Name, result.Pattern.Language)
		}
		if result.Whisper != "" {
			fmt.Printf("whisper: %s\n", result.Whisper)
		}
		if result.Healing != nil {
			fmt.Printf("healed: converged=%v iterations=%d\n", result.Healing.Converged, result.Healing.Iterations)
		}
	})
}
