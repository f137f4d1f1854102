package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mvgen",
		Short:        "Cut source clips on the beat of a music track",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	root.SilenceErrors = true

	f := root.Flags()
	f.String("config", "", "YAML file with flag values")

	// Visible flags
	f.StringP("audio", "a", "", "Audio file, directory of tracks, or a duration (ss, mm:ss, hh:mm:ss)")
	f.StringSliceP("src", "s", nil, "Source video directories (repeatable)")
	f.StringP("beats", "b", "auto", "Beats file, auto, beats, tag or a BPM")
	f.Float64P("multiplier", "m", 1, "Cut every N beats (<1 cuts between beats)")
	f.Float64("start-margin", 0, "Skip this much of each clip's start (seconds, or a fraction below 1)")
	f.Float64("end-margin", 0, "Skip this much of each clip's end (seconds, or a fraction below 1)")
	f.String("audio-mode", "audio", "Final audio: audio, original or mix")
	f.Float64("offset", 0, "Delay the video against the audio, in seconds")
	f.String("force", "", "Scale and pad the output to WxH")
	f.Bool("convert", false, "Re-encode when joining instead of copying streams")
	f.String("work-dir", getenvDefault("MVGEN_WORK_DIR", "work"), "Directory for run workspaces")
	f.String("ready-dir", getenvDefault("MVGEN_READY_DIR", "ready"), "Directory for finished videos")
	f.Bool("keep", false, "Keep the run workspace")
	f.Bool("delete-audio", false, "Delete the audio file after copying it")
	f.Uint64("seed", 0, "Random seed (0 picks one)")
	f.BoolP("quiet", "q", false, "Only print errors")
	f.Bool("progress", false, "Show a progress bar")

	// Hidden tuning flags (internal)
	f.String("uid", "", "Run id")
	f.Int("max-attempts", 5, "Draws per cut before giving up")
	f.Duration("extract-timeout", 0, "Timeout per segment extraction")
	f.Duration("probe-timeout", 0, "Timeout per duration probe")
	f.Float64("min-length", 0.04, "Shortest cut in seconds; shorter intervals merge into the next")
	f.String("ffmpeg", getenvDefault("MVGEN_FFMPEG", "ffmpeg"), "ffmpeg binary")
	f.String("ffprobe", getenvDefault("MVGEN_FFPROBE", "ffprobe"), "ffprobe binary")
	f.StringSlice("codec", nil, "ffmpeg video codec arguments")
	for _, name := range []string{"uid", "max-attempts", "extract-timeout", "probe-timeout", "min-length", "ffmpeg", "ffprobe", "codec"} {
		_ = f.MarkHidden(name)
	}
	return root
}
