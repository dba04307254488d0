package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"reelsmith/internal/config"
	"reelsmith/internal/deps"
)

const gib = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minGiB available to unprivileged users. Stitching writes a full re-encode
// next to its inputs.
func CheckFreeSpace(name, path string, minGiB uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%.1f GiB free", float64(free)/gib)
	// Compare in whole GiB; minGiB*gib would overflow for large minimums.
	if free/gib < minGiB {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d GiB)", detail, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the ffmpeg tools named in config. Both the daemon
// and the CLI status command use this.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.MediaRequirements(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary))
}

// CheckProviderCredentials reports which providers have credentials. It
// never contacts the providers.
func CheckProviderCredentials(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	vertexToken := firstSet(cfg.Vertex.AccessToken, cfg.Vertex.TokenCommand)
	results := []Result{
		credential("Replicate", cfg.Replicate.APIToken, "api token"),
		credential("WaveSpeed", cfg.WaveSpeed.APIKey, "api key"),
		credential("ElevenLabs", cfg.ElevenLabs.APIKey, "api key"),
	}
	switch {
	case strings.TrimSpace(cfg.Vertex.ProjectID) == "":
		results = append(results, Result{Name: "Vertex", Detail: "missing project id"})
	case vertexToken == "":
		results = append(results, Result{Name: "Vertex", Detail: "missing access token or token command"})
	default:
		results = append(results, Result{Name: "Vertex", Passed: true, Detail: "configured"})
	}
	if cfg.ObjectStore.Enabled {
		results = append(results, credential("Object store", cfg.ObjectStore.Bucket, "bucket"))
	}
	return results
}

func credential(name, value, what string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Name: name, Detail: "missing " + what}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
