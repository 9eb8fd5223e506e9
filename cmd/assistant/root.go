package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"LLMAssistant/internal/adapter/render"
	"LLMAssistant/internal/adapter/tui"
	"LLMAssistant/internal/ai"
	"LLMAssistant/internal/app/session"
	"LLMAssistant/internal/config"
	"LLMAssistant/internal/logger"
	"LLMAssistant/internal/service/image"
	"LLMAssistant/internal/service/notify"
	"LLMAssistant/internal/service/player"
	"LLMAssistant/internal/service/profile"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const rootLongDesc string = `Chat with an OpenAI-compatible LLM about an astrophotography image.

The assistant sends a JSON profile of the selected image (and, with vision
enabled, the image itself) to the configured chat completions endpoint and
keeps the conversation going in a terminal UI.

Configuration is read from the TOML file, then .env, then environment
variables (LLM_URL, LLM_API_KEY, LLM_MODEL, VISION_ENABLED, ...), and finally
from flags.

Examples:
  assistant --image m31.tif --vision
  assistant --screen --model llava
  assistant --plain --prompt "How do I remove a green cast?"
  assistant --plain --image ngc7000.png --profile ngc7000.json`

const rootShortDesc string = "LLM assistant for astrophotography image processing"

// defaultLogName лог TUI-режима, если log_file не задан: stderr занят интерфейсом.
const defaultLogName = "llm-assistant.log"

type rootCommander struct {
	configPath  string
	imagePath   string
	screen      bool
	profilePath string
	prompt      string
	plain       bool
	stub        bool

	// Значения флагов, перекрывающих конфигурацию. Применяются, только если флаг задан.
	url         string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	vision      bool
	maxDim      int
	debug       bool
	logFile     string
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "assistant",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cmder.configPath, "config", "c", "assistant.toml", "Path to TOML config file")
	f.StringVarP(&cmder.imagePath, "image", "i", "", "Image to analyze (jpeg, png, gif, bmp, tiff)")
	f.BoolVar(&cmder.screen, "screen", false, "Capture the screen as the image to analyze")
	f.StringVar(&cmder.profilePath, "profile", "", "JSON analysis file to send instead of the basic image profile")
	f.StringVarP(&cmder.prompt, "prompt", "p", "", "Question to ask (plain mode)")
	f.BoolVar(&cmder.plain, "plain", false, "Print replies to stdout and exit instead of starting the UI")
	f.BoolVar(&cmder.stub, "stub", false, "Do not contact the LLM, answer with a stub")

	f.StringVar(&cmder.url, "url", "", "Chat completions endpoint URL")
	f.StringVar(&cmder.apiKey, "api-key", "", "Bearer token ("+config.NoKey+" disables authorization)")
	f.StringVarP(&cmder.model, "model", "m", "", "Model name; empty omits the field")
	f.Float64Var(&cmder.temperature, "temperature", 0, "Sampling temperature 0..2")
	f.IntVar(&cmder.maxTokens, "max-tokens", 0, "Maximum tokens in the reply 50..16000")
	f.BoolVar(&cmder.vision, "vision", false, "Attach the image to the first request")
	f.IntVar(&cmder.maxDim, "max-dim", 0, "Longest image side sent to the model 512..2048")
	f.BoolVar(&cmder.debug, "debug", false, "Debug logging, keep temporary files")
	f.StringVar(&cmder.logFile, "log-file", "", "Log file; empty logs to stderr in plain mode")

	cmd.MarkFlagsMutuallyExclusive("image", "screen")
	return cmd
}

// loadConfig накладывает заданные флаги поверх конфигурации из файла и окружения.
func (c *rootCommander) loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("url", func() { cfg.URL = c.url })
	set("api-key", func() { cfg.APIKey = c.apiKey })
	set("model", func() { cfg.Model = c.model })
	set("temperature", func() { cfg.Temperature = c.temperature })
	set("max-tokens", func() { cfg.MaxTokens = c.maxTokens })
	set("vision", func() { cfg.EnableVision = c.vision })
	set("max-dim", func() { cfg.VisionMaxDimension = c.maxDim })
	set("debug", func() { cfg.DebugMode = c.debug })
	set("log-file", func() { cfg.LogFile = c.logFile })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *rootCommander) source(logger *zap.SugaredLogger) image.Source {
	switch {
	case c.screen:
		return image.NewScreenSource(logger)
	case c.imagePath != "":
		return image.NewFileSource(c.imagePath)
	default:
		return nil
	}
}

// analysis готовый JSON из --profile или базовый профиль изображения.
func (c *rootCommander) analysis(ctx context.Context, src image.Source) (any, error) {
	if c.profilePath != "" {
		return profile.Load(c.profilePath)
	}
	return profile.Describe(ctx, src)
}

func (c *rootCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logPath := cfg.LogFile
	if logPath == "" && !c.plain {
		logPath = filepath.Join(os.TempDir(), defaultLogName)
	}
	w, closeLog, err := logger.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	zl := logger.New(cfg.DebugMode, w)
	sugar := zl.Sugar()
	defer func() {
		_ = zl.Sync()
	}()

	sugar.Infow("Starting app",
		"url", cfg.URL,
		"model", cfg.Model,
		"vision", cfg.EnableVision,
		"plain", c.plain,
		"stub", c.stub,
		"DebugMode", cfg.DebugMode,
	)

	image.NewCleaner(sugar).Clean(cfg.TempDir, cfg.TempTTL, cfg.DebugMode)

	var sender ai.Sender
	if c.stub {
		sender = ai.NewStubClient()
	} else {
		client, err := ai.NewClient(cfg, nil, sugar)
		if err != nil {
			return err
		}
		sender = client
	}
	prep := image.NewPreparer(cfg.JPEGQuality, cfg.TempDir, sugar)
	notifier := notify.NewSoundNotifier(sugar, cfg.NotificationSoundPath, player.NewWithVolume(cfg.NotificationVolumeDB))

	src := c.source(sugar)
	if c.plain {
		return c.runPlain(ctx, cmd.OutOrStdout(), cfg, sender, prep, notifier, src, sugar)
	}
	return c.runUI(ctx, cfg, sender, prep, notifier, src, sugar)
}

func (c *rootCommander) runPlain(ctx context.Context, out io.Writer, cfg *config.Config, sender ai.Sender,
	prep session.Preparer, notifier *notify.SoundNotifier, src image.Source, sugar *zap.SugaredLogger,
) error {
	if src == nil && c.prompt == "" {
		return errors.New("nothing to do: pass --image, --screen or --prompt")
	}

	md, err := render.NewMarkdown(render.StyleNoTTY, 100)
	if err != nil {
		return err
	}
	printer := newPlainPrinter(out, md)
	sess := session.New(cfg, sender, prep, session.Multi(printer, notifier), sugar)

	if src != nil {
		analysis, err := c.analysis(ctx, src)
		if err != nil {
			return fmt.Errorf("build image profile: %w", err)
		}
		if err := sess.StartAnalysis(ctx, src, analysis, true); err != nil {
			return err
		}
		sess.Wait()
	}
	if c.prompt != "" {
		if err := sess.SubmitUserText(ctx, c.prompt); err != nil {
			return err
		}
		sess.Wait()
	}
	if n := printer.failures(); n > 0 {
		return fmt.Errorf("%d request(s) failed", n)
	}
	return nil
}

func (c *rootCommander) runUI(ctx context.Context, cfg *config.Config, sender ai.Sender,
	prep session.Preparer, notifier *notify.SoundNotifier, src image.Source, sugar *zap.SugaredLogger,
) error {
	md, err := render.NewMarkdown(render.StyleDark, 100)
	if err != nil {
		return err
	}
	ui := tui.New(ctx, md, cfg.Model, sugar)
	sess := session.New(cfg, sender, prep, session.Multi(ui, notifier), sugar)

	var analyze func(ctx context.Context) error
	if src != nil {
		analyze = func(ctx context.Context) error {
			analysis, err := c.analysis(ctx, src)
			if err != nil {
				return fmt.Errorf("build image profile: %w", err)
			}
			return sess.StartAnalysis(ctx, src, analysis, true)
		}
	}
	ui.Attach(sess, analyze)

	if analyze != nil {
		if err := analyze(ctx); err != nil {
			return err
		}
	}

	// Остановка по сигналу
	go func() {
		<-ctx.Done()
		ui.Stop()
	}()

	err = ui.Run()
	sess.Reset()
	sess.Wait()
	return err
}
