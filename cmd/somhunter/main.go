// Command somhunter is the CLI front-end over pkg/somhunter, grounded
// on the teacher's cmd/sqvect cobra layout: a persistent --config flag
// opens one Engine per invocation, and each subcommand runs exactly one
// operation against it. There is no HTTP/JSON transport here — a long
// running session belongs to a caller embedding pkg/somhunter directly,
// not to this CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/siret/somhunter-go/internal/config"
	"github.com/siret/somhunter-go/internal/logging"
	"github.com/siret/somhunter-go/internal/session"
	"github.com/siret/somhunter-go/internal/types"
	"github.com/siret/somhunter-go/pkg/somhunter"
)

var (
	configPath string
	userToken  string
)

var rootCmd = &cobra.Command{
	Use:   "somhunter",
	Short: "CLI for the interactive known-item retrieval engine",
	Long:  `A command-line interface for rescoring, browsing and submitting frames against a somhunter engine instance.`,
}

func openEngine(ctx context.Context) (*somhunter.Engine, *config.Config, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewStd(logging.ParseLevel(cfg.LogLevel))
	eng, err := somhunter.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func tokenOrDefault(cfg *config.Config) string {
	if userToken != "" {
		return userToken
	}
	return cfg.UserToken
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore [text]",
	Short: "Run one rescore with a single free-text temporal slot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		q := session.Query{Filters: session.NoFilter()}
		if len(args) == 1 {
			q.Temporal = []session.TemporalQuery{{Text: args[0]}}
		}

		contextID, _, err := eng.Rescore(ctx, tokenOrDefault(cfg), q)
		if err != nil {
			return fmt.Errorf("rescore failed: %w", err)
		}
		fmt.Printf("rescored, context_id=%d\n", contextID)
		return nil
	},
}

var (
	displayKind string
	displayPage int
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Fetch one page of the current display",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		kind, err := parseDisplayKind(displayKind)
		if err != nil {
			return err
		}

		frames, err := eng.GetDisplay(tokenOrDefault(cfg), kind, types.None(), displayPage, true)
		if err != nil {
			return fmt.Errorf("get_display failed: %w", err)
		}

		for i, f := range frames {
			id, ok := f.Get()
			if !ok {
				fmt.Printf("%d: (none)\n", i)
				continue
			}
			fmt.Printf("%d: frame %d\n", i, id)
		}
		return nil
	},
}

func parseDisplayKind(s string) (session.DisplayKind, error) {
	switch s {
	case "random", "":
		return session.DisplayRandom, nil
	case "topn":
		return session.DisplayTopN, nil
	case "topn-context":
		return session.DisplayTopNContext, nil
	case "knn":
		return session.DisplayTopKNN, nil
	case "som":
		return session.DisplaySOM, nil
	case "som-relocation":
		return session.DisplaySOMRelocation, nil
	case "video-detail":
		return session.DisplayVideoDetail, nil
	default:
		return 0, fmt.Errorf("unknown display kind %q", s)
	}
}

var (
	autocompleteCount int
)

var autocompleteCmd = &cobra.Command{
	Use:   "autocomplete <prefix>",
	Short: "List keyword completions for a prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, _, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		candidates := eng.AutocompleteKeywords(args[0], autocompleteCount)
		data, err := json.MarshalIndent(candidates, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <frame-id>",
	Short: "Log in to the evaluation server and submit a frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid frame id %q: %w", args[0], err)
		}

		if !eng.LoginToEvalServer(ctx) {
			return fmt.Errorf("login to evaluation server failed")
		}
		defer eng.LogoutFromEvalServer(ctx)

		user := eng.GetUserContext(tokenOrDefault(cfg))
		result, err := eng.SubmitToEvalServer(ctx, user.Current.ID, types.FrameID(n))
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		fmt.Printf("submission result: %s\n", result)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the engine and block, for warming caches under a supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cfg, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		fmt.Printf("engine ready: user_token=%s\n", cfg.UserToken)
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the engine's YAML config file")
	rootCmd.PersistentFlags().StringVar(&userToken, "user-token", "", "user token to operate against (defaults to config's user_token)")

	displayCmd.Flags().StringVar(&displayKind, "kind", "random", "display kind: random|topn|topn-context|knn|som|som-relocation|video-detail")
	displayCmd.Flags().IntVar(&displayPage, "page", 0, "page (or temporal slot, for som-relocation)")

	autocompleteCmd.Flags().IntVar(&autocompleteCount, "count", 10, "maximum number of completions")

	rootCmd.AddCommand(serveCmd, rescoreCmd, displayCmd, autocompleteCmd, submitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
