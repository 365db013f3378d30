package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"earshot/answer"
	"earshot/config"
	"earshot/db"
	"earshot/gateway"
	"earshot/llm"
	"earshot/session"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(recapCmd)
	rootCmd.AddCommand(costsCmd)

	rootCmd.PersistentFlags().String("stt-url", "", "Transcription stream endpoint")
	rootCmd.PersistentFlags().String("stt-api-key", "", "Transcription API key")
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().String("openrouter-api-key", "", "OpenRouter API key")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().Int("http-port", 4242, "Local gateway port")

	viper.BindPFlag("stt_url", rootCmd.PersistentFlags().Lookup("stt-url"))
	viper.BindPFlag("stt_api_key", rootCmd.PersistentFlags().Lookup("stt-api-key"))
	viper.BindPFlag(
		"openai_api_key",
		rootCmd.PersistentFlags().Lookup("openai-api-key"),
	)
	viper.BindPFlag(
		"openrouter_api_key",
		rootCmd.PersistentFlags().Lookup("openrouter-api-key"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))

	listenCmd.Flags().String("language", "", "Language hint for transcription")
	viper.BindPFlag("language", listenCmd.Flags().Lookup("language"))
}

func initConfig() {
	config.SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "earshot",
	Short: "Earshot is a real-time conversation copilot core",
	Long:  `Earshot transcribes two audio sources in real time, keeps an editable merged transcript, and answers captured questions with dual-speed model calls. The overlay UI talks to it over a local HTTP gateway.`,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the pipeline and local gateway",
	Run:   runListen,
}

var recapCmd = &cobra.Command{
	Use:   "recap [transcript file]",
	Short: "Summarize a saved transcript",
	Long:  `Stream a markdown recap of a saved transcript file (or stdin) through OpenAI.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runRecap,
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "List recorded model costs in a table",
	Run:   runCosts,
}

func runListen(cmd *cobra.Command, args []string) {
	mainLogger, hearLogger, dataLogger := createLoggers()

	cfg := config.SessionConfig()
	if cfg.STTURL == "" {
		mainLogger.Fatal("missing STT_URL or --stt-url=")
	}

	sess := session.New(cfg, hearLogger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if viper.GetString("DATABASE_URL") != "" {
		conn, ledger, err := db.OpenDatabase(ctx)
		if err != nil {
			dataLogger.Warn("no cost ledger", "error", err)
		} else {
			defer conn.Close(context.Background())
			sess.SetCostSink(func(rec answer.CostRecord) {
				if err := ledger.InsertCost(ctx, rec); err != nil {
					dataLogger.Error("insert cost", "error", err)
				}
			})
		}
	}

	sess.Start(ctx, viper.GetString("language"))
	defer sess.Stop()

	gw := gateway.New(sess, mainLogger)
	go func() {
		if err := gw.Serve(viper.GetInt("http_port")); err != nil {
			mainLogger.Fatal("gateway", "error", err)
		}
	}()

	<-ctx.Done()
	mainLogger.Info("shutting down")
}

func runRecap(cmd *cobra.Command, args []string) {
	mainLogger, _, _ := createLoggers()

	apiKey := viper.GetString("openai_api_key")
	if apiKey == "" {
		mainLogger.Fatal("missing OPENAI_API_KEY or --openai-api-key=")
	}

	var transcript []byte
	var err error
	if len(args) == 1 {
		transcript, err = os.ReadFile(args[0])
	} else {
		transcript, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		mainLogger.Fatal("read transcript", "error", err.Error())
	}

	summaryChan, err := llm.SummarizeSession(
		context.Background(),
		apiKey,
		string(transcript),
	)
	if err != nil {
		mainLogger.Fatal("failed to start recap", "error", err.Error())
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(62),
	)
	if err != nil {
		mainLogger.Fatal("failed to create renderer", "error", err.Error())
	}

	var full strings.Builder
	for chunk := range summaryChan {
		full.WriteString(chunk)
	}

	rendered, err := renderer.Render(full.String())
	if err != nil {
		mainLogger.Fatal("failed to render recap", "error", err.Error())
	}
	fmt.Print(rendered)
}

func runCosts(cmd *cobra.Command, args []string) {
	mainLogger, _, _ := createLoggers()

	ctx := context.Background()
	conn, ledger, err := db.OpenDatabase(ctx)
	if err != nil {
		mainLogger.Fatal("open cost ledger", "error", err.Error())
	}
	defer conn.Close(ctx)

	records, err := ledger.ListCosts(ctx, "", 100)
	if err != nil {
		mainLogger.Fatal("fetch cost records", "error", err.Error())
	}

	if len(records) == 0 {
		fmt.Println("No cost records found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Session", "Provider", "Model", "Slot", "Tokens", "Cost"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	var total float64
	for _, rec := range records {
		total += rec.CostUSD
		table.Append([]string{
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			shortID(rec.SessionID),
			string(rec.Provider),
			rec.ModelID,
			string(rec.ModelSlot),
			fmt.Sprintf("%d", rec.TotalTokens),
			fmt.Sprintf("$%.4f", rec.CostUSD),
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "Total", fmt.Sprintf("$%.4f", total)})

	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func createLoggers() (mainLogger, hearLogger, dataLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	hearLogger = logger.With().WithPrefix("hear")
	dataLogger = logger.With().WithPrefix("data")

	return
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
