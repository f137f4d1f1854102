package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indigocalifornia/mvgen/internal/config"
	"github.com/indigocalifornia/mvgen/internal/pipeline"
)

func run(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if path, _ := flags.GetString("config"); path != "" {
		values, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := config.Apply(flags, values); err != nil {
			return err
		}
	}

	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	quiet, _ := flags.GetBool("quiet")
	showProgress, _ := flags.GetBool("progress")
	if !quiet {
		stderr := cmd.ErrOrStderr()
		cfg.Logf = func(format string, args ...any) {
			fmt.Fprintf(stderr, format+"\n", args...)
		}
	}
	if showProgress && !quiet {
		pb := newProgressBar(cmd.ErrOrStderr())
		defer pb.Close()
		cfg.Observer = pb
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Final)
	return nil
}

func configFromFlags(cmd *cobra.Command) (pipeline.Config, error) {
	f := cmd.Flags()
	audio, _ := f.GetString("audio")
	srcs, _ := f.GetStringSlice("src")
	beatSpec, _ := f.GetString("beats")
	mult, _ := f.GetFloat64("multiplier")
	startMargin, _ := f.GetFloat64("start-margin")
	endMargin, _ := f.GetFloat64("end-margin")
	mode, _ := f.GetString("audio-mode")
	offset, _ := f.GetFloat64("offset")
	force, _ := f.GetString("force")
	convert, _ := f.GetBool("convert")
	workDir, _ := f.GetString("work-dir")
	readyDir, _ := f.GetString("ready-dir")
	keep, _ := f.GetBool("keep")
	deleteAudio, _ := f.GetBool("delete-audio")
	seed, _ := f.GetUint64("seed")
	uid, _ := f.GetString("uid")
	attempts, _ := f.GetInt("max-attempts")
	extractTimeout, _ := f.GetDuration("extract-timeout")
	probeTimeout, _ := f.GetDuration("probe-timeout")
	minLength, _ := f.GetFloat64("min-length")
	ffmpegPath, _ := f.GetString("ffmpeg")
	ffprobePath, _ := f.GetString("ffprobe")
	codec, _ := f.GetStringSlice("codec")

	abs := make([]string, 0, len(srcs))
	for _, s := range srcs {
		p, err := filepath.Abs(s)
		if err != nil {
			return pipeline.Config{}, err
		}
		abs = append(abs, p)
	}

	return pipeline.Config{
		Audio:      audio,
		Sources:    abs,
		Beats:      beatSpec,
		Multiplier: mult,

		StartMargin: startMargin,
		EndMargin:   endMargin,

		AudioMode: mode,
		Offset:    offset,
		Force:     force,
		Convert:   convert,

		UID:         uid,
		WorkDir:     workDir,
		ReadyDir:    readyDir,
		KeepWorkDir: keep,
		DeleteAudio: deleteAudio,
		Seed:        seed,

		MaxAttempts:    attempts,
		ExtractTimeout: extractTimeout,
		ProbeTimeout:   probeTimeout,
		MinLength:      minLength,

		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		VideoCodec:  codec,
	}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
