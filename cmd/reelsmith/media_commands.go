package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/media/stitch"
	"reelsmith/internal/mediastore"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Summarize a media file with ffprobe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := ctx.mediaTools(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			info, err := tools.Prober.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.ProbeResponse{Path: args[0], Info: info})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:       %s\n", args[0])
			fmt.Fprintf(out, "Duration:   %.3fs (%s)\n", info.Duration, info.DurationSource)
			fmt.Fprintf(out, "Video:      %s", yesNo(info.HasVideo))
			if info.HasVideo {
				fmt.Fprintf(out, " %dx%d @ %.3f fps %s", info.Width, info.Height, info.FPS, info.VideoCodec)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Audio:      %s (%d streams)\n", yesNo(info.HasAudio), info.AudioStreams)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newFramesCommand(ctx *commandContext) *cobra.Command {
	framesCmd := &cobra.Command{
		Use:   "frames",
		Short: "Extract still frames from a clip",
	}
	framesCmd.AddCommand(newFrameCommand(ctx, api.PositionFirst, "Extract the first frame"))
	framesCmd.AddCommand(newFrameCommand(ctx, api.PositionLast, "Extract the last frame"))
	framesCmd.AddCommand(newFrameCommand(ctx, api.PositionAt, "Extract the frame at a timestamp"))
	return framesCmd
}

func newFrameCommand(ctx *commandContext, position, short string) *cobra.Command {
	var output string
	var timestamp float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   position + " <video>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tools, err := ctx.mediaTools(cmd)
			if err != nil {
				return err
			}
			video := args[0]
			if _, err := os.Stat(video); err != nil {
				return err
			}
			out := strings.TrimSpace(output)
			if out == "" {
				out = api.DefaultFramePath(filepath.Join(cfg.Paths.MediaDir, "images"),
					api.FrameRequest{Video: video, Position: position, Timestamp: timestamp})
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			var boundary frames.Boundary
			switch position {
			case api.PositionFirst:
				boundary, err = tools.Extractor.ExtractFirst(cmd.Context(), video, out)
			case api.PositionLast:
				boundary, err = tools.Extractor.ExtractLast(cmd.Context(), video, out)
			default:
				boundary, err = tools.Extractor.ExtractAt(cmd.Context(), video, timestamp, out)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.FrameResponse{Boundary: boundary})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (t=%.3fs, %s)\n", boundary.Path, boundary.Timestamp, boundary.Confidence)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination image (default: media images directory)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	if position == api.PositionAt {
		cmd.Flags().Float64VarP(&timestamp, "timestamp", "t", 0, "Timestamp in seconds, clamped to the clip")
	}
	return cmd
}

func newStitchCommand(ctx *commandContext) *cobra.Command {
	var output string
	var plain bool
	var record bool
	var projectID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stitch <clip> <clip> [clip...]",
		Short: "Join clips, dropping the duplicated seam frame",
		Long: "Join clips in order. Each clip after the first loses its first frame, which a\n" +
			"continuation clip shares with the previous clip's last frame. Use --plain to keep it.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tools, err := ctx.mediaTools(cmd)
			if err != nil {
				return err
			}
			out := strings.TrimSpace(output)
			if out == "" {
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				out = filepath.Join(cfg.Paths.MediaDir, "video", base+"_stitched.mp4")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			var result stitch.Result
			if len(args) == 2 && !plain {
				result, err = tools.Stitcher.Stitch(cmd.Context(), args[0], args[1], out)
			} else {
				result, err = tools.Stitcher.Concat(cmd.Context(), args, out, stitch.Options{Continuity: !plain})
			}
			if err != nil {
				return err
			}

			if record {
				store, err := mediastore.Open(cfg.MetadataPath())
				if err != nil {
					return err
				}
				defer store.Close()
				if _, err := store.Insert(cmd.Context(), mediastore.Record{
					ProjectID: projectID,
					Kind:      mediastore.KindVideo,
					Path:      result.Path,
					MimeType:  "video/mp4",
					Duration:  result.Duration,
					Width:     result.Width,
					Height:    result.Height,
				}); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%.3fs, %s, audio %s, trimmed %.3fs)\n",
				result.Path, result.Duration, result.Strategy, result.AudioSource, result.TrimmedSeconds)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination clip (default: media video directory)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Concatenate without dropping seam frames")
	cmd.Flags().BoolVar(&record, "record", false, "Record the stitched clip in the metadata store")
	cmd.Flags().StringVar(&projectID, "project", "", "Project id for --record")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect the media metadata store",
	}
	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaScanCommand(ctx))
	return mediaCmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var projectID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded media, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := mediastore.Open(cfg.MetadataPath())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if asJSON {
				if records == nil {
					records = []mediastore.Record{}
				}
				return writeJSON(cmd, api.MediaListResponse{Records: records})
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No media recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					shortJobID(rec.ID),
					kindLabel(string(rec.Kind)),
					rec.ProjectID,
					mediaRelPath(cfg.Paths.MediaDir, rec.Path),
					formatDuration(rec.Duration),
					dimensions(rec.Width, rec.Height),
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"ID", "Kind", "Project", "Path", "Duration", "Size"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Only list media for this project")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMediaScanCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Index files under the media directory into the metadata store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tools, err := ctx.mediaTools(cmd)
			if err != nil {
				return err
			}
			store, err := mediastore.Open(cfg.MetadataPath())
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Scan(cmd.Context(), cfg.Paths.MediaDir, projectID, tools.Prober, ctx.logger(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d, skipped %d, probe failures %d\n",
				summary.Indexed, summary.Skipped, summary.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project id to stamp on new records")
	return cmd
}

func mediaRelPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return strconv.FormatFloat(seconds, 'f', 2, 64) + "s"
}

func dimensions(w, h int) string {
	if w <= 0 || h <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", w, h)
}
