package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remembrance-oracle/oracle-core/internal/coherency"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

var (
	registerFile        string
	registerName        string
	registerDescription string
	registerTags        string
	registerTestFile    string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Evaluate and register a new pattern in the local library",
	RunE:  runRegister,
}

var (
	voteVoter     string
	voteDirection string
)

var voteCmd = &cobra.Command{
	Use:   "vote [pattern-id]",
	Short: "Cast a reputation-weighted vote on a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runVote,
}

func init() {
	registerCmd.Flags().StringVar(&registerFile, "file", "", "Source file (default: read stdin)")
	registerCmd.Flags().StringVar(&registerName, "name", "", "Pattern name (required)")
	registerCmd.Flags().StringVar(&registerDescription, "description", "", "Pattern description (required)")
	registerCmd.Flags().StringVar(&registerTags, "tags", "", "Comma-separated tags")
	registerCmd.Flags().StringVar(&registerTestFile, "test-file", "", "Optional test/proof source file")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("description")

	voteCmd.Flags().StringVar(&voteVoter, "voter", "", "Voter ID (required)")
	voteCmd.Flags().StringVar(&voteDirection, "direction", "up", "up or down")
	voteCmd.MarkFlagRequired("voter")
}

func readSource(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func runRegister(cmd *cobra.Command, args []string) error {
	code, err := readSource(registerFile)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	var testCode string
	if registerTestFile != "" {
		testCode, err = readSource(registerTestFile)
		if err != nil {
			return fmt.Errorf("read test source: %w", err)
		}
	}

	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := o.evaluator.Evaluate(ctx, coherency.Input{
		Code: code, TestCode: testCode, Description: registerDescription,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if !result.Valid {
		return fmt.Errorf("register: evaluation rejected the pattern (%d violations)", len(result.Violations))
	}

	p := types.Pattern{
		Name: registerName, Code: code, Language: result.Language,
		Description: registerDescription, TestCode: testCode,
		PatternType: result.PatternType, Complexity: result.Complexity,
		CoherencyScore:   result.CoherencyScore,
		GenerationMethod: types.GenerationSeed,
		CovenantSealed:   result.CovenantSealed,
	}
	if registerTags != "" {
		p.Tags = strings.Split(registerTags, ",")
	}

	insertResult, err := o.local.Insert(p, false)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	if err := o.cycle.OnRegistration(ctx); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	return printResult(os.Stdout, insertResult, func() {
		fmt.Printf("registered %s (%s) id=%s merged=%v coherency=%.3f\n",
			insertResult.Pattern.Name, insertResult.Pattern.Language, insertResult.Pattern.ID,
			insertResult.Merged, insertResult.Pattern.CoherencyScore.Total)
	})
}

func runVote(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	dir := store.DirectionUp
	if strings.EqualFold(voteDirection, "down") {
		dir = store.DirectionDown
	}

	votes, err := o.node.Vote(cmd.Context(), args[0], voteVoter, dir)
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}

	return printResult(os.Stdout, votes, func() {
		fmt.Printf("votes: up=%d down=%d score=%.3f\n", votes.Upvotes, votes.Downvotes, votes.Score)
	})
}
