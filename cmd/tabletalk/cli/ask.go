package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tabletalk/tabletalk/internal/model"
)

func newAskCmd() *cobra.Command {
	var (
		role       string
		userID     string
		jsonOutput bool
		showSQL    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question from the command line",
		Long: `Run one question through the full pipeline and print the rows. The same
safety checks and table access rules apply as on the HTTP API.`,
		Example: `  tabletalk ask "how many rows in sales"
  tabletalk ask --role admin "total amount by region in sales"
  tabletalk ask --json "top 5 users" | jq .rows`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(strings.Join(args, " "), userID, role, jsonOutput, showSQL)
		},
	}

	cmd.Flags().StringVar(&role, "role", "admin", "Role to ask as")
	cmd.Flags().StringVar(&userID, "user", "cli", "User ID recorded in the audit log")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full answer as JSON")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the executed SQL before the rows")

	return cmd
}

func runAsk(question, userID, role string, jsonOutput, showSQL bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Keep pipeline noise off the terminal unless asked for.
	if cfg.Logging.Level == "" || strings.EqualFold(cfg.Logging.Level, "info") {
		cfg.Logging.Level = "warn"
	}
	logger := newLogger(cfg)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	id := model.Identity{UserID: userID, Username: userID, Role: strings.ToLower(role)}
	ans, rej := a.pipeline.HandleQuestion(ctx, id, question)
	if rej != nil {
		if rej.Fragment != "" {
			return fmt.Errorf("%s: %s (fragment: %s)", rej.Code, rej.Message, rej.Fragment)
		}
		return fmt.Errorf("%s: %s", rej.Code, rej.Message)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	if showSQL {
		fmt.Printf("SQL: %s\n\n", ans.SQL)
	}
	printRows(ans)
	if ans.Explanation != "" {
		fmt.Printf("\n%s\n", ans.Explanation)
	}
	// Keep piped output clean; the summary line is for humans.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("\n%d row(s) in %.0fms", ans.RowCount, ans.LatencyMs)
		if ans.CacheHit {
			fmt.Print(" (cached)")
		}
		fmt.Println()
	}
	return nil
}

func printRows(ans *model.Answer) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, strings.Join(ans.Columns, "\t"))
	for _, row := range ans.Rows {
		cells := make([]string, len(ans.Columns))
		for i, col := range ans.Columns {
			if v := row[col]; v != nil {
				cells[i] = fmt.Sprint(v)
			} else {
				cells[i] = "NULL"
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}
