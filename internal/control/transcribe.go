package control

import (
	"context"
	"fmt"
	"os"
	"time"

	"voicecap/internal/asr"
	"voicecap/internal/audio"
	"voicecap/internal/cascade"
	"voicecap/internal/clipboard"
	"voicecap/internal/config"
	"voicecap/internal/hook"
	"voicecap/internal/logging"
	"voicecap/internal/pipeline"
	"voicecap/internal/postprocess"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewTranscribeCmd runs a WAV file through the recognition cascade and
// postprocessing without the daemon.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file with the configured backends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if p, _ := cmd.Flags().GetString("primary"); p != "" {
				cfg.Recognition.Primary = p
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			buf, err := readWAVFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, post, err := transcribeBuffer(ctx, cfg, logger, buf)
			if err != nil {
				return err
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "backend: %s (%d attempt(s))\nraw: %s\n", res.Backend, len(res.Attempts), res.Text)
			}
			if post.Notice != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), post.Notice)
			}
			fmt.Fprintln(cmd.OutOrStdout(), post.Final)
			if post.Final == "" {
				return nil
			}

			if wantCopy, _ := cmd.Flags().GetBool("copy"); wantCopy {
				out := &clipboard.Output{Logger: logger}
				if err := out.Copy(post.Final); err != nil {
					return err
				}
			}
			if wantHook, _ := cmd.Flags().GetBool("hook"); wantHook {
				r := hook.NewRunner(cfg, logger)
				if !r.Accepts(post.Final) {
					return fmt.Errorf("skipped: text shorter than hook.min_chars=%d", cfg.Hook.MinChars)
				}
				return r.Run(ctx, hook.Job{Text: post.Final, Timestamp: time.Now()})
			}
			return nil
		},
	}
	cmd.Flags().String("primary", "", "first backend to try (groq, openai, local)")
	cmd.Flags().Bool("copy", false, "copy the result to the clipboard")
	cmd.Flags().Bool("hook", false, "also send through the configured hook")
	cmd.Flags().BoolP("verbose", "v", false, "print the backend and raw text to stderr")
	return cmd
}

func readWAVFile(path string) (audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, err
	}
	defer f.Close()
	buf, err := audio.ReadWAV(f)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: %w", path, err)
	}
	return buf, nil
}

func transcribeBuffer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, buf audio.Buffer) (cascade.Result, postprocess.Result, error) {
	profile, err := pipeline.ProfileFromConfig(cfg)
	if err != nil {
		return cascade.Result{}, postprocess.Result{}, err
	}
	client := asr.NewHTTPClient()
	registry := asr.NewRegistry(profile.Recognizers, asr.DefaultFactory(client))
	defer registry.Close()

	settings := profile.Settings(client, logger)
	buf = settings.Scaler.Scale(buf)
	res, err := cascade.New(registry, profile.Cascade, logger).Run(ctx, buf, profile.Primary)
	if err != nil {
		return res, postprocess.Result{}, err
	}
	return res, settings.Postprocessor.Process(ctx, res.Text), nil
}
