package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiyumin/biliget/internal/core/config"
	"github.com/guiyumin/biliget/internal/core/downloader"
	"github.com/guiyumin/biliget/internal/core/history"
	"github.com/guiyumin/biliget/internal/core/media"
	"github.com/guiyumin/biliget/internal/core/pipeline"
	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

func init() {
	color.NoColor = true
}

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BILIGET_CONFIG_DIR", dir)
	t.Setenv("BILIGET_SESSDATA", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigSetAndShow(t *testing.T) {
	isolateConfig(t)

	_, err := run(t, "config", "set", "quality", "64")
	require.NoError(t, err)
	_, err = run(t, "config", "set", "bilibili.cookie", "SESSDATA=abcdefghijkl")
	require.NoError(t, err)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Quality)

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Quality:    64 720P")
	assert.Contains(t, out, "SESSDATA=abcd...ijkl")
	assert.NotContains(t, out, "abcdefghijkl")
}

func TestConfigSetUnknownKey(t *testing.T) {
	isolateConfig(t)

	_, err := run(t, "config", "set", "nope", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownKey)
	assert.Contains(t, err.Error(), "bilibili.legacy_fallback")
}

func TestConfigSetKeepsSavedCookie(t *testing.T) {
	isolateConfig(t)
	saved := config.Default()
	saved.Bilibili.Cookie = "SESSDATA=saved; bili_jct=jct; DedeUserID=42"
	require.NoError(t, config.Save(saved))
	t.Setenv("BILIGET_SESSDATA", "fromenv")

	_, err := run(t, "config", "set", "quality", "64")
	require.NoError(t, err)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Quality)
	assert.Equal(t, "SESSDATA=saved; bili_jct=jct; DedeUserID=42", cfg.Bilibili.Cookie)
}

func TestConfigSetRefusesMalformedFile(t *testing.T) {
	dir := isolateConfig(t)
	path := filepath.Join(dir, "config.yml")
	broken := []byte("output_dir: /my/videos\nquality: [\n")
	require.NoError(t, os.WriteFile(path, broken, 0600))

	_, err := run(t, "config", "set", "quality", "64")
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, broken, data)
}

func TestConfigPath(t *testing.T) {
	dir := isolateConfig(t)

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.SavePath()+"\n", out)
	assert.True(t, strings.HasPrefix(out, dir))
}

func TestHistoryCommands(t *testing.T) {
	isolateConfig(t)

	db, err := history.OpenDefault()
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	require.NoError(t, db.Add(&history.Record{VideoID: "BV1xx411c7mD", Page: 1, Title: "Intro", Status: history.StatusCompleted, SizeBytes: 2000, StartedAt: now, CompletedAt: now.Add(65 * time.Second)}))
	require.NoError(t, db.Add(&history.Record{VideoID: "BV1xx411c7mD", Page: 2, Title: "Outro", Status: history.StatusFailed, Error: "boom", StartedAt: now, CompletedAt: now.Add(70 * time.Second)}))
	require.NoError(t, db.Close())

	out, err := run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ BV1xx411c7mD P1 Intro  2.0 kB in 1:05")
	assert.Contains(t, out, "✗ BV1xx411c7mD P2 Outro: boom")

	out, err = run(t, "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed: 1")
	assert.Contains(t, out, "Failed:    1")

	out, err = run(t, "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 records")

	out, err = run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No downloads yet.")
}

func TestHistoryDelete(t *testing.T) {
	isolateConfig(t)

	db, err := history.OpenDefault()
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	require.NoError(t, db.Add(&history.Record{ID: "rec-1", VideoID: "BV1xx411c7mD", Page: 1, Title: "Intro", Status: history.StatusCompleted, StartedAt: now, CompletedAt: now}))
	require.NoError(t, db.Close())

	out, err := run(t, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "rec-1")

	out, err = run(t, "history", "delete", "rec-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed rec-1")

	_, err = run(t, "history", "delete", "rec-1")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := newLineReporter(&buf)

	sample := func(written int64, done bool) downloader.Progress {
		return downloader.Progress{Kind: media.KindVideo, Written: written, Total: 1000, Speed: 100, Done: done}
	}
	r.report(sample(10, false))
	r.report(sample(20, false))
	r.report(sample(110, false))
	r.report(sample(1000, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "video")
	assert.Contains(t, lines[0], "1.0%")
	assert.Contains(t, lines[1], "11.0%")
	assert.Contains(t, lines[1], "100 B/s")
	assert.Contains(t, lines[1], "eta 0:09")
	assert.Contains(t, lines[2], "100.0%")
}

func TestDownloadOptions(t *testing.T) {
	isolateConfig(t)
	t.Cleanup(func() { quality, page, output = 0, 0, "" })

	cfg := config.Default()
	cfg.Quality = 64
	cfg.OutputDir = "/videos"

	cmd := &cobra.Command{}
	cmd.Flags().IntVarP(&quality, "quality", "q", 0, "")

	opts := downloadOptions(cmd, cfg, "https://www.bilibili.com/video/BV1xx411c7mD?p=3", false)
	assert.Equal(t, 64, opts.Quality)
	assert.Equal(t, 3, opts.Page)
	assert.Equal(t, "/videos", opts.OutputDir)

	require.NoError(t, cmd.Flags().Set("quality", "999"))
	output = "/elsewhere"
	page = 2
	opts = downloadOptions(cmd, cfg, "https://www.bilibili.com/video/BV1xx411c7mD?p=3", false)
	assert.Equal(t, bilibili.Quality1080P, opts.Quality)
	assert.Equal(t, 2, opts.Page)
	assert.Equal(t, "/elsewhere", opts.OutputDir)
}

func TestDownloadError(t *testing.T) {
	assert.NoError(t, downloadError(&pipeline.Report{Parts: []pipeline.PartResult{{Page: 1}}}, nil))

	cause := fmt.Errorf("part 2 (Outro): %w", context.Canceled)
	report := &pipeline.Report{Parts: []pipeline.PartResult{{Page: 1}, {Page: 2, Err: cause}}}
	err := downloadError(report, multierror.Append(nil, cause))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 parts failed")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintInfo(t *testing.T) {
	var buf bytes.Buffer
	printInfo(&buf, &bilibili.VideoMetadata{
		ID:    bilibili.VideoID{Kind: bilibili.KindBV, BVID: "BV1xx411c7mD"},
		Title: "Video",
		Owner: "someone",
		Parts: []bilibili.PartInfo{{Page: 1, Label: "Intro", CID: 11}, {Page: 2, CID: 12}},
	})

	out := buf.String()
	assert.Contains(t, out, "Title: Video")
	assert.Contains(t, out, "[P1] Intro  (cid 11)")
	assert.Contains(t, out, "[P2] Video  (cid 12)")
	assert.Contains(t, out, "127  8K (VIP)")
	assert.Contains(t, out, " 80  1080P\n")
}

func TestMaskCookie(t *testing.T) {
	assert.Equal(t, "(none)", maskCookie(""))
	assert.Equal(t, "SESSDATA=****", maskCookie("short"))
	assert.Equal(t, "SESSDATA=abcd...wxyz", maskCookie("SESSDATA=abcdefghwxyz; bili_jct=1"))
}

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("# favourites\nBV1xx411c7mD\n\n  https://www.bilibili.com/video/av170001  \n"), 0644))

	inputs, err := readBatchFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BV1xx411c7mD", "https://www.bilibili.com/video/av170001"}, inputs)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0644))
	_, err = readBatchFile(empty)
	assert.Error(t, err)

	_, err = readBatchFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "一二三四五六七...", truncate("一二三四五六七八九十壹", 10))
	assert.Equal(t, "一二三四五六七八九十", truncate("一二三四五六七八九十", 10))
}
