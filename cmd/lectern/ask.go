package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xhad/lectern/pkg/enrich"
	"github.com/xhad/lectern/pkg/rag"
)

var askTopK int

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 5, "Number of sources to retrieve")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, or start an interactive session",
	Long: `Answer a question from the indexed papers. Without a question an
interactive session starts; type 'exit' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		pipeline, err := reg.Pipeline(cmd.Context())
		if err != nil {
			return err
		}

		if len(args) > 0 {
			return answer(cmd.Context(), pipeline, strings.Join(args, " "))
		}

		// Piped input gets one answer per line without prompts.
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			color.Cyan("\nAsk the library (type 'exit' to quit)")
		}
		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()

		for {
			if interactive {
				userPrompt("\nYou: ")
			}
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			if strings.ToLower(question) == "exit" {
				break
			}
			if err := answer(cmd.Context(), pipeline, question); err != nil {
				color.Red("Error: %v", err)
			}
		}
		return scanner.Err()
	},
}

func answer(ctx context.Context, pipeline *rag.Pipeline, question string) error {
	assistant := color.New(color.FgCyan).PrintfFunc()

	spinner := getSpinner("Searching sources...")
	started := false
	result, err := pipeline.QueryStream(ctx, question, askTopK, func(chunk string) {
		if !started {
			spinner.Finish()
			fmt.Print("\n")
			assistant("Lectern: ")
			started = true
		}
		fmt.Print(chunk)
	})
	spinner.Finish()
	if err != nil {
		return err
	}
	if !started {
		fmt.Print("\n")
		assistant("Lectern: %s", result.Answer)
	}
	fmt.Print("\n")

	if len(result.Sources) > 0 {
		color.Yellow("\nSources:")
		for i, src := range result.Sources {
			if src == nil {
				continue
			}
			line := fmt.Sprintf("  %d. %s", i+1, src.String("title"))
			if year := src.String("year"); year != "" {
				line += fmt.Sprintf(" (%s)", year)
			}
			fmt.Println(line)
			if url := src.String("url"); url != "" {
				fmt.Printf("     %s\n", url)
			}
			if pdf := src.String(enrich.FreePDFKey); pdf != "" {
				color.Green("     Free PDF: %s", pdf)
			}
		}
	}
	color.Blue("\nLibrary search: %s", result.LibraryLinks.Primary)
	color.Blue("                %s", result.LibraryLinks.Secondary)
	return nil
}
