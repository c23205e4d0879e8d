package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/swar/internal/analysis"
	"github.com/pavelanni/swar/internal/events"
	"github.com/pavelanni/swar/internal/handler"
	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/questionbank"
	"github.com/pavelanni/swar/internal/report"
	"github.com/pavelanni/swar/internal/scoring"
	"github.com/pavelanni/swar/internal/session"
	"github.com/pavelanni/swar/internal/store"
	"github.com/pavelanni/swar/internal/transcribe"
)

const (
	minAITimeout = time.Second
	maxAITimeout = 2 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swar",
		Short: "Spoken-response screening for dyslexia and dyscalculia",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), bankCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `swar --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "swar.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default language for messages and reports (en, es)")
	f.String("ai-mode", "gateway", "Analysis backend: gateway (OpenAI-compatible API), endpoint (hosted function) or off")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("ai-endpoint", "", "URL of the hosted analysis function (ai-mode endpoint)")
	f.Duration("ai-timeout", session.DefaultAITimeout, "Bound on the background analysis (1s..2m)")
	f.Float64("ai-rate", 2, "Analysis requests per second (0 = unlimited)")
	f.Int("flag-threshold", scoring.DefaultFlagThreshold, "Flag sessions scoring below this percentage")
	f.String("match-rule", string(scoring.MatchFirstToken), "Correctness rule (first_token, all_tokens)")
	f.String("teacher-password", "", "Password of the initial teacher account (or set SWAR_TEACHER_PASSWORD)")
	f.String("school", "", "School name printed on reports")
	f.String("report-title", "", "Title printed on reports (default: localized)")
	f.StringSlice("cors-origins", []string{"http://localhost:5173"}, "Origins allowed to call the API from a browser")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored session report (PDF) or a teacher's session summary (XLSX)",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "swar.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Report language (en, es)")
	f.String("record", "", "Session record ID to render as PDF")
	f.String("teacher", "", "Teacher username whose sessions are exported as XLSX")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("record", "teacher")
	cmd.MarkFlagsOneRequired("record", "teacher")
	return cmd
}

func bankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Print the exercises for a grade and assessment type as JSON",
		RunE:  runBank,
	}
	f := cmd.Flags()
	f.IntP("grade", "g", 3, "School grade (clamped to 1..12)")
	f.StringP("type", "t", string(model.Dyslexia), "Assessment type (dyslexia, dyscalculia)")
	addLogFlags(cmd)
	return cmd
}

// setupLogging configures the default logger and returns a function that
// closes the log file, if any.
func setupLogging(cmd *cobra.Command) func() error {
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

	var out io.Writer = os.Stderr
	closeLogs := func() error { return nil }
	if path := v.GetString("log-file"); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotating)
		closeLogs = rotating.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLogs
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SWAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("swar")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/swar")
	v.AddConfigPath("/etc/swar")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// clampTimeout keeps the analysis bound within a usable range.
func clampTimeout(d time.Duration) time.Duration {
	if d < minAITimeout {
		return minAITimeout
	}
	if d > maxAITimeout {
		return maxAITimeout
	}
	return d
}

// parsePolicy validates the scoring flags.
func parsePolicy(threshold int, rule string) (scoring.Policy, error) {
	if threshold < 0 || threshold > 100 {
		return scoring.Policy{}, fmt.Errorf("flag-threshold must be between 0 and 100, got %d", threshold)
	}
	switch r := scoring.MatchRule(strings.ToLower(strings.TrimSpace(rule))); r {
	case scoring.MatchFirstToken, scoring.MatchAllTokens:
		return scoring.Policy{FlagThreshold: threshold, Match: r}, nil
	}
	return scoring.Policy{}, fmt.Errorf("unknown match-rule %q", rule)
}

// newAnalyzer builds the analysis backend selected by ai-mode. A nil
// analyzer completes sessions on the local result alone.
func newAnalyzer(ctx context.Context, v *viper.Viper) (analysis.Analyzer, error) {
	rate := analysis.WithRateLimit(v.GetFloat64("ai-rate"), 1)
	switch mode := strings.ToLower(v.GetString("ai-mode")); mode {
	case "off", "none":
		slog.Info("AI analysis disabled")
		return nil, nil
	case "endpoint":
		endpoint := v.GetString("ai-endpoint")
		if endpoint == "" {
			return nil, errors.New("ai-mode endpoint requires --ai-endpoint")
		}
		slog.Info("using hosted analysis endpoint", "url", endpoint)
		return analysis.NewRemote(endpoint, &http.Client{Timeout: maxAITimeout}, rate), nil
	case "gateway", "":
		client := analysis.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), rate)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			// Sessions still complete on the local score when the model is down.
			slog.Warn("LLM health check failed", "url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown ai-mode %q", mode)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	closeLogs := setupLogging(cmd)
	defer closeLogs()
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := model.Config{
		Lang:          v.GetString("lang"),
		FlagThreshold: v.GetInt("flag-threshold"),
		AITimeout:     clampTimeout(v.GetDuration("ai-timeout")),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
	}
	policy, err := parsePolicy(cfg.FlagThreshold, v.GetString("match-rule"))
	if err != nil {
		return err
	}

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedTeacher(db, v.GetString("teacher-password")); err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}
	if err := updateReportInfo(db, v.GetString("school"), v.GetString("report-title")); err != nil {
		return fmt.Errorf("save report info: %w", err)
	}
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired logins", "error", err)
	}

	analyzer, err := newAnalyzer(ctx, v)
	if err != nil {
		return err
	}

	bus := events.NewBus(slog.Default())
	defer bus.Close()

	manager := session.NewManager(session.Config{
		Policy:    policy,
		Analyzer:  analyzer,
		AITimeout: cfg.AITimeout,
		OnComplete: func(view session.View) {
			_ = bus.PublishSessionCompleted(events.SessionCompleted{
				SessionID:  view.ID,
				Generation: view.Generation,
				SubjectID:  view.SubjectID,
			})
		},
	}, func() transcribe.Adapter { return transcribe.NewPush() })
	defer manager.Close()

	recorder := handler.NewRecorder(db, manager)
	if err := bus.HandleSessionCompleted(ctx, recorder.HandleCompleted); err != nil {
		return fmt.Errorf("subscribe recorder: %w", err)
	}

	h := handler.New(db, manager, recorder)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware())
	h.Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("starting server",
		"addr", srv.Addr,
		"lang", cfg.Lang,
		"languages", appI18n.Languages(),
		"ai_mode", v.GetString("ai-mode"),
		"model", v.GetString("llm-model"),
		"ai_timeout", cfg.AITimeout,
		"flag_threshold", policy.FlagThreshold,
		"match_rule", policy.Match,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "active_sessions", manager.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	closeLogs := setupLogging(cmd)
	defer closeLogs()
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(v.GetString("lang")))
	var data []byte
	if id := v.GetString("record"); id != "" {
		data, err = exportRecord(ctx, db, id)
	} else {
		data, err = exportSummary(ctx, db, v.GetString("teacher"))
	}
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), data)
}

func exportRecord(ctx context.Context, db *store.Store, id string) ([]byte, error) {
	rec, err := db.GetSessionRecord(id)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s not found", id)
	}
	sub, err := db.GetSubject(rec.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("subject %d not found", rec.SubjectID)
	}
	var teacherName string
	if t, err := db.GetTeacherByID(sub.TeacherID); err == nil && t != nil {
		teacherName = t.DisplayName
	}
	info, err := db.GetReportInfo()
	if err != nil {
		return nil, fmt.Errorf("get report info: %w", err)
	}
	return handler.RecordReport(ctx, info, rec, sub, teacherName)
}

func exportSummary(ctx context.Context, db *store.Store, username string) ([]byte, error) {
	t, err := db.GetTeacherByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("teacher %q not found", username)
	}
	views, err := db.ExportRecords(t.ID)
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	slog.Info("exporting session summary", "teacher", username, "records", len(views))
	return report.Summary(views, handler.ReportLabels(ctx))
}

func writeOutput(path string, data []byte) error {
	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func runBank(cmd *cobra.Command, _ []string) error {
	closeLogs := setupLogging(cmd)
	defer closeLogs()
	v := viperForCmd(cmd)

	t, err := model.ParseAssessmentType(v.GetString("type"))
	if err != nil {
		return err
	}
	grade := model.ClampGrade(v.GetInt("grade"))
	out := struct {
		Grade     int                  `json:"grade"`
		Band      questionbank.Band    `json:"band"`
		Type      model.AssessmentType `json:"type"`
		Exercises []model.Exercise     `json:"exercises"`
	}{grade, questionbank.BandFor(grade), t, questionbank.For(grade, t)}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func seedTeacher(db *store.Store, password string) error {
	count, err := db.TeacherCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("teacher password is required: set --teacher-password flag or SWAR_TEACHER_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}

	_, err = db.CreateTeacher(model.Teacher{
		Username:     "teacher",
		DisplayName:  "Teacher",
		PasswordHash: string(hash),
	})
	if err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}

	slog.Info("seeded default teacher", "username", "teacher")
	return nil
}

// updateReportInfo stores the letterhead when it was given on the command
// line, keeping the stored values otherwise.
func updateReportInfo(db *store.Store, school, title string) error {
	if school == "" && title == "" {
		return nil
	}
	info, err := db.GetReportInfo()
	if err != nil {
		return err
	}
	if school != "" {
		info.School = school
	}
	if title != "" {
		info.Title = title
	}
	return db.SetReportInfo(info)
}
