package main

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write config.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		RunSetup()
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func RunSetup() {
	log.Info("Starting earshot setup...")

	sttURL := viper.GetString("stt_url")
	sttAPIKey := viper.GetString("stt_api_key")
	openaiAPIKey := viper.GetString("openai_api_key")
	openrouterAPIKey := viper.GetString("openrouter_api_key")
	geminiAPIKey := viper.GetString("gemini_api_key")
	databaseURL := viper.GetString("DATABASE_URL")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription stream URL").
				Value(&sttURL),
			huh.NewInput().
				Title("Transcription API key").
				Value(&sttAPIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Value(&openaiAPIKey),
			huh.NewInput().
				Title("OpenRouter API key (optional)").
				Value(&openrouterAPIKey),
			huh.NewInput().
				Title("Gemini API key (optional)").
				Value(&geminiAPIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Postgres URL for the cost ledger (optional)").
				Value(&databaseURL),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal("Error during setup", "error", err)
	}

	viper.Set("stt_url", sttURL)
	viper.Set("stt_api_key", sttAPIKey)
	viper.Set("openai_api_key", openaiAPIKey)
	viper.Set("openrouter_api_key", openrouterAPIKey)
	viper.Set("gemini_api_key", geminiAPIKey)
	viper.Set("DATABASE_URL", databaseURL)

	if err := viper.WriteConfigAs("config.yaml"); err != nil {
		log.Fatal("Error saving configuration", "error", err)
	}

	log.Info("Setup completed successfully!")
}
