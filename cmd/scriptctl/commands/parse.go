package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/script"
)

var parseSpeakers []string

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a raw script into dialogue lines",
	Long: `Parse a raw script into dialogue lines JSON.

Every line of the form "Speaker: text" becomes one dialogue line; other lines
are skipped. Use "-" to read from stdin. Speakers given with --speaker are
matched case-insensitively and receive a persona id.

Example:
  scriptctl parse episode.txt --speaker Alex --speaker Sam`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}

		personas := make([]domain.Persona, 0, len(parseSpeakers))
		for i, name := range parseSpeakers {
			personas = append(personas, domain.Persona{ID: fmt.Sprintf("speaker-%d", i+1), Name: name})
		}

		lines := script.ParseScript(string(data), personas)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	},
}

func init() {
	parseCmd.Flags().StringArrayVar(&parseSpeakers, "speaker", nil, "known speaker name (repeatable)")
}
