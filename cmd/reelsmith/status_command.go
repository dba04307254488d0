package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/deps"
	"reelsmith/internal/preflight"
	"reelsmith/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var remote *api.StatusResponse
			client, err := api.NewClient(cfg.API.Bind, cfg.API.Token)
			if err != nil {
				return err
			}
			resp, err := client.Status(cmd.Context())
			switch {
			case err == nil:
				remote = &resp
			case api.IsAPIUnavailable(err):
			default:
				return err
			}

			status := localStatus(cmd.Context(), cfg, remote)
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd, ctx.configPath, cfg.Paths.TempDir, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// localStatus prefers what the daemon reports and fills the rest from local
// checks so the command is useful with no daemon running.
func localStatus(ctx context.Context, cfg *config.Config, remote *api.StatusResponse) api.StatusResponse {
	if remote != nil {
		return *remote
	}
	checks := preflight.RunAll(ctx, cfg)
	checks = append(checks, preflight.CheckProviderCredentials(cfg)...)
	return api.StatusResponse{
		JobsPath:     cfg.JobsPath(),
		MetadataPath: cfg.MetadataPath(),
		LockFilePath: cfg.LockPath(),
		Dependencies: preflight.CheckSystemDeps(cfg),
		Checks:       checks,
	}
}

func renderStatus(cmd *cobra.Command, configPath, tempDir string, status api.StatusResponse) {
	out := cmd.OutOrStdout()
	color := isTerminal(out)

	fmt.Fprintln(out, renderSectionHeader("Daemon", color))
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), color))
		fmt.Fprintln(out, renderStatusLine("Active jobs", statusInfo, fmt.Sprintf("%d", status.ActiveJobs), color))
		if len(status.JobStats) > 0 {
			fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, fmt.Sprintf("running %d, completed %d, failed %d",
				status.JobStats["running"], status.JobStats["completed"], status.JobStats["failed"]), color))
		}
		if len(status.Providers) > 0 {
			fmt.Fprintln(out, renderStatusLine("Providers", statusInfo, strings.Join(status.Providers, ", "), color))
		}
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", color))
	}
	if configPath != "" {
		fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configPath, color))
	}
	fmt.Fprintln(out, renderStatusLine("Jobs file", statusInfo, status.JobsPath, color))
	fmt.Fprintln(out, renderStatusLine("Metadata", statusInfo, status.MetadataPath, color))
	if line, kind := scratchSummary(tempDir); line != "" {
		fmt.Fprintln(out, renderStatusLine("Scratch", kind, line, color))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Dependencies", color))
	fmt.Fprintln(out, renderTable(out, []string{"Name", "Command", "Available", "Detail"}, dependencyRows(status.Dependencies), nil))

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Checks", color))
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = failureKind(isCredentialCheck(check.Name))
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, color))
	}
}

func dependencyRows(statuses []deps.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, dep := range statuses {
		rows = append(rows, []string{dep.Name, dep.Command, yesNo(dep.Available), dep.Detail})
	}
	return rows
}

// Missing provider credentials only matter for jobs that use that provider.
func isCredentialCheck(name string) bool {
	switch name {
	case "Replicate", "WaveSpeed", "ElevenLabs", "Vertex", "Object store":
		return true
	}
	return false
}

// scratchSummary reports leftover per-operation directories under tempDir.
func scratchSummary(tempDir string) (string, statusKind) {
	dirs, err := staging.ListDirectories(tempDir)
	if err != nil {
		return fmt.Sprintf("%s: %v", tempDir, err), statusWarn
	}
	if len(dirs) == 0 {
		return "", statusInfo
	}
	var total int64
	for _, dir := range dirs {
		total += dir.Size
	}
	return fmt.Sprintf("%d directories (%s) in %s", len(dirs), formatMiB(total), tempDir), statusInfo
}

func formatMiB(bytes int64) string {
	return fmt.Sprintf("%.1f MiB", float64(bytes)/(1<<20))
}
