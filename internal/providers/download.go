package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/services"
)

const downloadChunk = 32 * 1024

// Download stores output at dest. Remote outputs are streamed through a
// fixed-size buffer into dest.part and renamed once complete; local outputs
// are moved. It returns the number of bytes stored.
func Download(ctx context.Context, client *http.Client, output Output, dest string) (int64, error) {
	if dest == "" {
		return 0, services.Wrap(services.ErrValidation, "download", "prepare", "destination is required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, services.Wrap(services.ErrMediaProcessing, "download", "prepare", dest, err)
	}
	if output.LocalPath != "" {
		if err := fileutil.MoveFile(output.LocalPath, dest); err != nil {
			return 0, services.Wrap(services.ErrMediaProcessing, "download", "move", output.LocalPath, err)
		}
		info, err := os.Stat(dest)
		if err != nil {
			return 0, services.Wrap(services.ErrMediaProcessing, "download", "stat", dest, err)
		}
		return info.Size(), nil
	}
	if output.URL == "" {
		return 0, services.Wrap(services.ErrProviderRejected, "download", "prepare", "output has no location", nil)
	}

	resp, err := Do(ctx, client, Call{Provider: "download", Op: "fetch", Method: http.MethodGet, URL: output.URL, Header: output.Header})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	partial := dest + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return 0, services.Wrap(services.ErrMediaProcessing, "download", "create", partial, err)
	}
	written, copyErr := io.CopyBuffer(onlyWriter{file}, onlyReader{resp.Body}, make([]byte, downloadChunk))
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, services.Wrap(services.ErrTransient, "download", "stream", output.URL, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(partial)
		return 0, services.Wrap(services.ErrTransient, "download", "stream", fmt.Sprintf("short body: %d of %d bytes", written, resp.ContentLength), nil)
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return 0, services.Wrap(services.ErrMediaProcessing, "download", "finalize", dest, err)
	}
	return written, nil
}

// onlyReader and onlyWriter hide WriterTo/ReaderFrom so io.CopyBuffer uses
// the fixed buffer.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

type onlyWriter struct {
	w io.Writer
}

func (o onlyWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}
