package config

import (
	"time"

	"github.com/spf13/viper"

	"earshot/answer"
	"earshot/llm"
	"earshot/session"
)

// SetDefaults seeds viper with the settings a fresh install runs
// under. Every key can be overridden by config.yaml, environment, or
// a bound flag.
func SetDefaults() {
	viper.SetDefault("sample_rate", 16000)
	viper.SetDefault("relay_capacity", 100)
	viper.SetDefault("max_attempts", 3)
	viper.SetDefault("base_delay_ms", 500)
	viper.SetDefault("cap_delay_ms", 10000)

	viper.SetDefault("template", "interview")
	viper.SetDefault("use_reasoning", false)
	viper.SetDefault("reasoning_effort", "medium")

	viper.SetDefault("fast_model", "gpt-4o-mini")
	viper.SetDefault("full_model", "gpt-4o")
	viper.SetDefault("reasoning_model", "o4-mini")
	viper.SetDefault("max_tokens", 1024)

	viper.SetDefault("http_port", 4242)
}

// APIKeys collects whichever provider keys are configured. Providers
// without a key are skipped at model resolution time.
func APIKeys() map[llm.ProviderID]string {
	keys := make(map[llm.ProviderID]string)
	if k := viper.GetString("openai_api_key"); k != "" {
		keys[llm.ProviderOpenAI] = k
	}
	if k := viper.GetString("openrouter_api_key"); k != "" {
		keys[llm.ProviderOpenRouter] = k
	}
	if k := viper.GetString("gemini_api_key"); k != "" {
		keys[llm.ProviderGemini] = k
	}
	return keys
}

// AnswerSettings assembles the model configuration for the answer
// orchestrator.
func AnswerSettings() answer.Settings {
	return answer.Settings{
		FastModel:       viper.GetString("fast_model"),
		FullModel:       viper.GetString("full_model"),
		ReasoningModel:  viper.GetString("reasoning_model"),
		ReasoningEffort: viper.GetString("reasoning_effort"),
		MaxTokens:       viper.GetInt("max_tokens"),
		APIKeys:         APIKeys(),
	}
}

// SessionConfig assembles the full pipeline configuration.
func SessionConfig() session.Config {
	return session.Config{
		STTURL:     viper.GetString("stt_url"),
		STTAPIKey:  viper.GetString("stt_api_key"),
		SampleRate: viper.GetInt("sample_rate"),

		RelayCapacity: viper.GetInt("relay_capacity"),
		MaxAttempts:   viper.GetInt("max_attempts"),
		BaseDelay:     time.Duration(viper.GetInt("base_delay_ms")) * time.Millisecond,
		CapDelay:      time.Duration(viper.GetInt("cap_delay_ms")) * time.Millisecond,

		TemplateID:      viper.GetString("template"),
		UseReasoning:    viper.GetBool("use_reasoning"),
		ReasoningEffort: viper.GetString("reasoning_effort"),

		Answer: AnswerSettings(),
	}
}
