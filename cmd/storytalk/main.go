package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/edulab-kr/storytalk/internal/handler"
	appI18n "github.com/edulab-kr/storytalk/internal/i18n"
	"github.com/edulab-kr/storytalk/internal/ledger"
	"github.com/edulab-kr/storytalk/internal/llm"
	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/report"
	"github.com/edulab-kr/storytalk/internal/score"
	"github.com/edulab-kr/storytalk/internal/sharing"
	"github.com/edulab-kr/storytalk/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storytalk",
		Short: "Story conversation server with question-quality scoring",
	}

	serve := serveCmd()
	root.AddCommand(serve, reportCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `storytalk --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP conversation server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "storytalk.db", "SQLite database path")
	f.StringP("story", "s", "story.txt", "Path to the story text file")
	f.String("guide-questions", "", "Optional guide questions JSON file")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "ko", "API message language (ko, en)")
	f.String("teacher-password", "", "Initial teacher password (or set STORYTALK_TEACHER_PASSWORD)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one student's learning report as markdown",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.String("db", "storytalk.db", "SQLite database path")
	f.String("student", "", "Student ID (required)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("output", "o", "", "Output file path (- for stdout, default: derived filename)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("student")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export class activity as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "storytalk.db", "SQLite database path")
	f.String("class", "", "Class label included in export metadata")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("STORYTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("storytalk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/storytalk")
	v.AddConfigPath("/etc/storytalk")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedTeacherPassword(db, v.GetString("teacher-password")); err != nil {
		return fmt.Errorf("seed teacher password: %w", err)
	}

	// The story is the anchor of every conversation; refusing to start
	// without it beats serving empty prompts.
	story, err := loadStory(v.GetString("story"))
	if err != nil {
		return fmt.Errorf("load story: %w", err)
	}

	guideQuestions, err := loadGuideQuestions(v.GetString("guide-questions"))
	if err != nil {
		return fmt.Errorf("load guide questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	cfg := model.AppConfig{
		StoryPath:     v.GetString("story"),
		GuidePath:     v.GetString("guide-questions"),
		SecureCookies: v.GetBool("secure-cookies"),
		Lang:          lang,
	}

	ledgerSvc := ledger.New(db)
	sharingReg := sharing.New(db, ledgerSvc)
	scorer := score.NewScorer(llmClient)
	reporter := report.New(llmClient, ledgerSvc)

	h := handler.New(db, ledgerSvc, sharingReg, scorer, reporter, llmClient, cfg, story, guideQuestions)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"story", cfg.StoryPath,
		"guide_questions", len(guideQuestions),
	)
	return http.ListenAndServe(addr, r)
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	studentID := v.GetString("student")
	st, err := db.GetStudent(studentID)
	if err != nil {
		return fmt.Errorf("lookup student: %w", err)
	}
	name := ""
	if st != nil {
		name = st.Name
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)

	ledgerSvc := ledger.New(db)
	reporter := report.New(llmClient, ledgerSvc)
	doc := reporter.Synthesize(context.Background(), studentID)

	outPath := v.GetString("output")
	if outPath == "" {
		outPath = report.ExportFilename(studentID, name)
	}
	if outPath == "-" {
		_, err = io.WriteString(os.Stdout, doc)
		return err
	}
	if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	slog.Info("report written", "student_id", studentID, "path", outPath)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ledgerSvc := ledger.New(db)
	export, err := ledgerSvc.BuildClassExport(v.GetString("class"))
	if err != nil {
		return fmt.Errorf("build export: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadStory(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	story := strings.TrimSpace(string(data))
	if story == "" {
		return "", fmt.Errorf("story file %s is empty", path)
	}
	return story, nil
}

func loadGuideQuestions(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Questions, nil
}

// seedTeacherPassword stores the bcrypt hash of the teacher password.
// A password given on a later start replaces the stored one; with no
// stored hash the server refuses to start so the dashboard is never
// silently open.
func seedTeacherPassword(db *store.Store, password string) error {
	if password == "" {
		existing, err := db.GetSetting(store.SettingTeacherPasswordHash)
		if err != nil {
			return err
		}
		if existing == "" {
			return fmt.Errorf("teacher password is required: set --teacher-password flag or STORYTALK_TEACHER_PASSWORD env var")
		}
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}
	if err := db.SetSetting(store.SettingTeacherPasswordHash, string(hash)); err != nil {
		return fmt.Errorf("store teacher password hash: %w", err)
	}
	slog.Info("teacher password set")
	return nil
}
