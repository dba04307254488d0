package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/jobs"
	"reelsmith/internal/worker"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and submit generation jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var kind string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.ListJobs(cmd.Context(), api.JobQuery{Statuses: statuses, Kind: kind, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Kind", "Status", "Progress", "Message", "Updated"},
					jobRows(resp.Jobs), []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
				fmt.Fprintf(out, "running %d, completed %d, failed %d\n",
					resp.Stats[string(jobs.StatusRunning)], resp.Stats[string(jobs.StatusCompleted)], resp.Stats[string(jobs.StatusFailed)])
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (running, completed, failed)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by job kind")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func jobRows(list []api.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		message := job.Message
		if job.Status == string(jobs.StatusFailed) {
			message = job.Error
		}
		rows = append(rows, []string{
			shortJobID(job.ID),
			kindLabel(job.Kind),
			job.Status,
			strconv.Itoa(job.Progress) + "%",
			truncate(message, 60),
			job.UpdatedAt,
		})
	}
	return rows
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				printJob(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printJob(cmd *cobra.Command, job api.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", job.ID)
	fmt.Fprintf(out, "Kind:     %s\n", kindLabel(job.Kind))
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Progress: %d%%\n", job.Progress)
	if job.Message != "" {
		fmt.Fprintf(out, "Message:  %s\n", job.Message)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", job.Error)
	}
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt)
	fmt.Fprintf(out, "Updated:  %s\n", job.UpdatedAt)
	if len(job.Result) > 0 {
		var pretty any
		if json.Unmarshal(job.Result, &pretty) == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintf(out, "Result:\n%s\n", data)
		}
	}
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var file string
	var req worker.Request
	var kind string
	var wait bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job from flags or a JSON request file",
		Example: `  reelsmith jobs submit --kind media-generation --prompt "a lighthouse at dusk"
  reelsmith jobs submit --kind continuity-stitch --clip-a a.mp4 --clip-b b.mp4 --wait
  reelsmith jobs submit --file request.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				loaded, err := readRequestFile(file)
				if err != nil {
					return err
				}
				req = loaded
			} else {
				parsed, ok := jobs.ParseKind(strings.TrimSpace(kind))
				if !ok {
					return fmt.Errorf("--kind must be one of %s", kindList())
				}
				req.Kind = parsed
				if cmd.Flags().Changed("continuity") {
					value, _ := cmd.Flags().GetBool("continuity")
					req.Continuity = &value
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				id, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted job %s\n", id)
				if !wait {
					return nil
				}
				job, err := waitForJob(cmd.Context(), client, id, waitTimeout)
				if err != nil {
					return err
				}
				printJob(cmd, job)
				if job.Status == string(jobs.StatusFailed) {
					return errors.New("job failed")
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "JSON request file (overrides the other flags)")
	flags.StringVar(&kind, "kind", "", "Job kind: "+kindList())
	flags.StringVar(&req.Provider, "provider", "", "Provider override")
	flags.StringVar(&req.ProjectID, "project", "", "Project id recorded with produced media")
	flags.StringVar(&req.OutputName, "output-name", "", "Base name for produced files")
	flags.StringVar(&req.MediaType, "media-type", "", "video or image (media-generation)")
	flags.StringVar(&req.Model, "model", "", "Provider model")
	flags.StringVar(&req.Prompt, "prompt", "", "Generation prompt")
	flags.StringVar(&req.StartFrame, "start-frame", "", "Start frame image")
	flags.StringVar(&req.EndFrame, "end-frame", "", "End frame image")
	flags.StringSliceVar(&req.ReferenceImages, "reference", nil, "Reference image (repeatable)")
	flags.StringVar(&req.ContinueFrom, "continue-from", "", "Clip whose last frame seeds the generation")
	flags.StringVar(&req.Resolution, "resolution", "", "Output resolution")
	flags.StringVar(&req.AspectRatio, "aspect-ratio", "", "Output aspect ratio")
	flags.IntVar(&req.DurationSeconds, "duration", 0, "Clip duration in seconds")
	flags.BoolVar(&req.GenerateAudio, "generate-audio", false, "Ask the provider for an audio track")
	flags.IntVar(&req.NumOutputs, "num-outputs", 0, "Number of images to generate")
	flags.StringVar(&req.Image, "image", "", "Portrait image (lip-sync-image, multi-character-lip-sync)")
	flags.StringVar(&req.Video, "video", "", "Source video (lip-sync-video)")
	flags.StringSliceVar(&req.Audio, "audio", nil, "Audio track (repeatable)")
	flags.StringVar(&req.Text, "text", "", "Text to speak (voice-generation)")
	flags.StringVar(&req.VoiceID, "voice", "", "Voice id (voice-generation)")
	flags.StringVar(&req.ClipA, "clip-a", "", "First clip (continuity-stitch)")
	flags.StringVar(&req.ClipB, "clip-b", "", "Second clip (continuity-stitch)")
	flags.StringSliceVar(&req.Clips, "clip", nil, "Clip in order (scene-render, repeatable)")
	flags.Bool("continuity", true, "Drop the seam frame between scene clips")
	flags.BoolVar(&wait, "wait", false, "Wait for the job to finish")
	flags.DurationVar(&waitTimeout, "wait-timeout", 30*time.Minute, "Give up waiting after this long")
	return cmd
}

func readRequestFile(path string) (worker.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return worker.Request{}, fmt.Errorf("read request file: %w", err)
	}
	var req worker.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return worker.Request{}, fmt.Errorf("parse request file: %w", err)
	}
	return req, nil
}

var waitPollInterval = time.Second

func waitForJob(ctx context.Context, client *api.Client, id string, timeout time.Duration) (api.Job, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		job, err := client.GetJob(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		if jobs.Status(job.Status).IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func kindList() string {
	kinds := jobs.Kinds()
	labels := make([]string, len(kinds))
	for i, k := range kinds {
		labels[i] = string(k)
	}
	return strings.Join(labels, ", ")
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
