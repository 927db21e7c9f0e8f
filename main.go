package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosley/minutes/audio"
	"github.com/bosley/minutes/capture"
	"github.com/bosley/minutes/config"
	"github.com/bosley/minutes/inference"
	"github.com/bosley/minutes/mcpserver"
	"github.com/bosley/minutes/notify"
	"github.com/bosley/minutes/pipeline"
	"github.com/bosley/minutes/server"
	"github.com/bosley/minutes/store"
	"github.com/bosley/minutes/watcher"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	playMeeting := flag.Int64("play", 0, "Play the recording of the meeting with this ID")
	mcpMode := flag.Bool("mcp", false, "Serve meeting tools over MCP on stdio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	setupLogging(cfg, *mcpMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	switch {
	case *listDevices:
		err = printDevices()
	case *mcpMode:
		err = serveMCP(ctx, cfg)
	case *playMeeting != 0:
		err = play(ctx, cfg, *playMeeting)
	default:
		err = run(ctx, cfg)
	}
	if err != nil {
		slog.Error("Program failed", "error", err)
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}

func setupLogging(cfg *config.Config, mcpMode bool) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	// stdout carries the MCP protocol in that mode.
	var out io.Writer = os.Stdout
	if mcpMode {
		out = os.Stderr
	}
	if cfg.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func printDevices() error {
	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	devices, err := audio.Devices()
	if err != nil {
		return err
	}

	fmt.Println("Available audio input devices:")
	for i, device := range devices {
		fmt.Printf("[%d] %s\n", i, device.Name)
		fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
		fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
		fmt.Println()
	}
	return nil
}

func serveMCP(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	return mcpserver.Serve(st, version)
}

func play(ctx context.Context, cfg *config.Config, id int64) error {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	meeting, err := st.FetchMeeting(ctx, id)
	if err != nil {
		return err
	}
	if meeting.AudioFilePath == nil {
		return fmt.Errorf("meeting %d has no recording", id)
	}

	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	slog.Info("Playing meeting", "id", id, "title", meeting.Title, "duration", meeting.FormattedDuration())
	return audio.Play(ctx, *meeting.AudioFilePath)
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.OverlapPolicy)
	if err != nil {
		return err
	}

	transcriber := inference.NewWhisperClient(cfg.Transcription.URL, cfg.Transcription.Language, cfg.Transcription.Timeout)
	summarizer := inference.NewOllamaClient(cfg.Summarization.URL, cfg.Summarization.Model, cfg.Summarization.Timeout)

	hub := server.NewHub()
	notifiers := notify.Multi{server.HubNotifier{Hub: hub}}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.Desktop{})
	}

	orch := pipeline.New(pipeline.Config{
		NewRecorder: func(onTick func(time.Duration)) pipeline.Recorder {
			return capture.NewSession(capture.Config{
				Dir: cfg.DocumentsDir,
				System: func() capture.Tap {
					return capture.NewSystemTap(cfg.Capture.SystemDevice, audio.SystemFormat)
				},
				Microphone: func(path string) capture.FileTap {
					return capture.NewMicrophoneTap(cfg.Capture.MicrophoneDevice, audio.MicrophoneFormat, path)
				},
				Tick:   cfg.Capture.Tick,
				OnTick: onTick,
			})
		},
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Store:       st,
		Permissions: audio.DevicePermissions{
			MicrophoneDevice: cfg.Capture.MicrophoneDevice,
			SystemDevice:     cfg.Capture.SystemDevice,
		},
		Notifier:    notifiers,
		Policy:      policy,
		RecentLimit: cfg.Pipeline.RecentLimit,
	})
	if err := orch.Start(ctx); err != nil {
		return err
	}

	// Ensure in-flight runs are cancelled on shutdown
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orch.Close(shutdownCtx); err != nil {
			slog.Error("Failed to stop pipeline", "error", err)
		}
	}()

	inbox, err := watcher.New(watcher.Config{Dir: cfg.InboxDir}, orch)
	if err != nil {
		return err
	}
	go func() {
		if err := inbox.Run(ctx); err != nil {
			slog.Error("Inbox watcher failed", "error", err)
		}
	}()

	srv := server.New(server.Config{
		Addr:     cfg.HTTP.Addr,
		CertFile: cfg.HTTP.CertFile,
		KeyFile:  cfg.HTTP.KeyFile,
	}, orch, st, summarizer, hub)

	slog.Info("Minutes ready",
		"recordings", cfg.DocumentsDir,
		"inbox", cfg.InboxDir,
		"database", cfg.DatabasePath,
		"model", summarizer.Model())

	return srv.Start(ctx)
}
