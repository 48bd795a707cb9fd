package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"siteledger/internal/config"
	"siteledger/internal/usecases"
)

var (
	classifyLang    string
	classifyImages  bool
	classifyProduct string
	classifyRules   string
)

// classifyCmd runs the classifier offline, without a store
var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify a message and print intent, confidence and fields as JSON",
	Example: `  siteledger classify "spent 50k on cement"
  siteledger classify --attachment "nota semen"`,
	Args: cobra.MinimumNArgs(1),
	// no config file or database is needed to classify
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = &config.Config{Bot: config.BotConfig{ProductName: classifyProduct, RulesPath: classifyRules}}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules()
		if err != nil {
			return err
		}
		result := usecases.NewIntentClassifier(rules).Classify(strings.Join(args, " "), usecases.Hints{
			HasAttachment: classifyImages,
			Lang:          classifyLang,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyLang, "lang", "", "language hint (en or id)")
	classifyCmd.Flags().BoolVar(&classifyImages, "attachment", false, "treat the text as an image caption")
	classifyCmd.Flags().StringVar(&classifyProduct, "product", "SiteLedger", "product name used in wake phrases")
	classifyCmd.Flags().StringVar(&classifyRules, "rules", "", "rules.yaml to use instead of the built-in one")
}
