package rewriter

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/config"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()
	rw, err := New(config.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return rw
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// mediaRecord fabricates an optimized media record with a single artifact.
func mediaRecord(root, rel, artifactRel string) *asset.Record {
	rec := &asset.Record{
		AbsPath: filepath.Join(root, filepath.FromSlash(rel)),
		RelPath: rel,
		Kind:    asset.KindImage,
		Status:  asset.StatusOptimized,
	}
	rec.Artifacts = []asset.Artifact{{
		SourcePath: rec.AbsPath,
		Path:       filepath.Join(root, filepath.FromSlash(artifactRel)),
		RelPath:    artifactRel,
		Format:     "image-webp",
		Size:       1,
	}}
	return rec
}

func textRecord(root, rel string) *asset.Record {
	return &asset.Record{
		AbsPath: filepath.Join(root, filepath.FromSlash(rel)),
		RelPath: rel,
		Kind:    asset.KindText,
		Status:  asset.StatusOptimized,
	}
}

func TestRewriteHTMLAttributes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), []byte(
		`<img src="photo.png"> <video poster='shots/frame.jpg'></video>`))

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		mediaRecord(root, "shots/frame.jpg", "shots/frame.webp"),
		textRecord(root, "index.html"),
	}

	edits := newTestRewriter(t).Rewrite(records)

	if len(edits) != 2 {
		t.Fatalf("edits = %d, want 2: %+v", len(edits), edits)
	}
	data, _ := os.ReadFile(filepath.Join(root, "index.html"))
	got := string(data)
	if !strings.Contains(got, `src="photo.webp"`) {
		t.Errorf("double-quoted src not rewritten: %s", got)
	}
	if !strings.Contains(got, `poster='shots/frame.webp'`) {
		t.Errorf("single-quoted poster not rewritten: %s", got)
	}
}

func TestRewritePreservesQueryAndFragment(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "page.html"), []byte(
		`<img src="photo.png?v=3#hero">`))

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		textRecord(root, "page.html"),
	}

	newTestRewriter(t).Rewrite(records)

	data, _ := os.ReadFile(filepath.Join(root, "page.html"))
	if !strings.Contains(string(data), `src="photo.webp?v=3#hero"`) {
		t.Errorf("query/fragment suffix not preserved: %s", data)
	}
}

func TestRewriteCSSURL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "css", "site.css"), []byte(
		`.hero { background: url(../img/bg.jpg); } .logo { background: url("../img/logo.png"); }`))

	records := []*asset.Record{
		mediaRecord(root, "img/bg.jpg", "img/bg.webp"),
		mediaRecord(root, "img/logo.png", "img/logo.webp"),
		textRecord(root, "css/site.css"),
	}

	edits := newTestRewriter(t).Rewrite(records)
	if len(edits) != 2 {
		t.Fatalf("edits = %d, want 2: %+v", len(edits), edits)
	}
	data, _ := os.ReadFile(filepath.Join(root, "css", "site.css"))
	got := string(data)
	if !strings.Contains(got, "url(../img/bg.webp)") {
		t.Errorf("bare url() not rewritten: %s", got)
	}
	if !strings.Contains(got, `url("../img/logo.webp")`) {
		t.Errorf("quoted url() not rewritten: %s", got)
	}
}

func TestRewriteIsPathQualified(t *testing.T) {
	root := t.TempDir()
	// Only the root-level photo.png was optimized. The page in sub/ refers to
	// its own, different photo.png and must not be touched.
	writeFile(t, filepath.Join(root, "sub", "page.html"), []byte(
		`<img src="photo.png">`))

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		textRecord(root, "sub/page.html"),
	}

	edits := newTestRewriter(t).Rewrite(records)
	if len(edits) != 0 {
		t.Fatalf("expected no edits for same-named asset in another directory, got %+v", edits)
	}
	data, _ := os.ReadFile(filepath.Join(root, "sub", "page.html"))
	if !strings.Contains(string(data), `src="photo.png"`) {
		t.Error("unrelated reference was rewritten")
	}
}

func TestRewriteRootAbsoluteReference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "page.html"), []byte(
		`<img src="/img/photo.png">`))

	records := []*asset.Record{
		mediaRecord(root, "img/photo.png", "img/photo.webp"),
		textRecord(root, "sub/page.html"),
	}

	newTestRewriter(t).Rewrite(records)

	data, _ := os.ReadFile(filepath.Join(root, "sub", "page.html"))
	if !strings.Contains(string(data), `src="/img/photo.webp"`) {
		t.Errorf("root-absolute reference not rewritten: %s", data)
	}
}

func TestRewriteSuffixFallbackPrefersLongestKey(t *testing.T) {
	root := t.TempDir()
	// The template's prefix does not resolve on disk, so only the suffix
	// fallback can match; it must pick assets/img/hero.png over img/hero.png.
	writeFile(t, filepath.Join(root, "tmpl", "page.html"), []byte(
		`<img src="{{.Static}}/assets/img/hero.png">`))

	records := []*asset.Record{
		mediaRecord(root, "img/hero.png", "img/hero.webp"),
		mediaRecord(root, "assets/img/hero.png", "assets/img/hero-v2.webp"),
		textRecord(root, "tmpl/page.html"),
	}

	newTestRewriter(t).Rewrite(records)

	data, _ := os.ReadFile(filepath.Join(root, "tmpl", "page.html"))
	if !strings.Contains(string(data), "/assets/img/hero-v2.webp") {
		t.Errorf("suffix fallback did not pick the most specific mapping: %s", data)
	}
}

func TestRewriteSkipsExternalURLs(t *testing.T) {
	root := t.TempDir()
	content := `<img src="https://cdn.example.com/photo.png">`
	writeFile(t, filepath.Join(root, "page.html"), []byte(content))

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		textRecord(root, "page.html"),
	}

	if edits := newTestRewriter(t).Rewrite(records); len(edits) != 0 {
		t.Fatalf("external URL must not be rewritten: %+v", edits)
	}
}

func TestRewriteUnchangedFileNotWritten(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "page.html")
	writeFile(t, file, []byte(`<p>no media here</p>`))

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(file, old, old); err != nil {
		t.Fatal(err)
	}

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		textRecord(root, "page.html"),
	}

	newTestRewriter(t).Rewrite(records)

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Error("file without matches must not be rewritten on disk")
	}
}

func TestRewriteUsesSkippedAssetArtifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "page.html"), []byte(`<img src="photo.png">`))

	// A guard-skipped record still carries its existing artifact, so
	// references keep pointing at the derived name on re-runs.
	skipped := mediaRecord(root, "photo.png", "photo.webp")
	skipped.Status = asset.StatusSkipped
	skipped.SkipReason = "artifact(s) up to date"

	records := []*asset.Record{skipped, textRecord(root, "page.html")}

	edits := newTestRewriter(t).Rewrite(records)
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
}

func TestRewriteVideoReference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "page.html"), []byte(
		`<video src="media/clip.mp4"></video>`))

	clip := mediaRecord(root, "media/clip.mp4", "media/clip.optimized.mp4")
	clip.Kind = asset.KindVideo
	records := []*asset.Record{clip, textRecord(root, "page.html")}

	newTestRewriter(t).Rewrite(records)

	data, _ := os.ReadFile(filepath.Join(root, "page.html"))
	if !strings.Contains(string(data), `src="media/clip.optimized.mp4"`) {
		t.Errorf("video reference not rewritten: %s", data)
	}
}

func TestEditOffsetsIndexOriginalContent(t *testing.T) {
	root := t.TempDir()
	// The first replacement changes the content length, so a later match only
	// carries a usable offset if all offsets are taken from the file as read.
	content := `<img src="photo.png"><div style="background: url(banner.jpg)"></div>`
	writeFile(t, filepath.Join(root, "page.html"), []byte(content))

	records := []*asset.Record{
		mediaRecord(root, "photo.png", "photo.webp"),
		mediaRecord(root, "banner.jpg", "banner.webp"),
		textRecord(root, "page.html"),
	}

	edits := newTestRewriter(t).Rewrite(records)
	if len(edits) != 2 {
		t.Fatalf("edits = %d, want 2: %+v", len(edits), edits)
	}
	for _, e := range edits {
		if e.Offset != strings.Index(content, e.Old) {
			t.Errorf("edit %q offset = %d, want %d", e.Old, e.Offset, strings.Index(content, e.Old))
		}
	}
	if edits[0].Offset > edits[1].Offset {
		t.Error("edits should be ordered by file position")
	}
}

func TestNewRejectsBadPatterns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rewrite.Patterns = []string{`src="([^"]+`}
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for invalid regex")
	}

	cfg.Rewrite.Patterns = []string{`src="([^"]+)\.(png)"`}
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for pattern with two capture groups")
	}
}
