package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestImage(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestDirSourceReplaysInOrder(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "frame_002.png"), 100)
	writeTestImage(t, filepath.Join(dir, "frame_001.png"), 50)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	first, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := color.GrayModel.Convert(first.Image.At(0, 0)).(color.Gray).Y; got != 50 {
		t.Errorf("first frame shade = %d, want 50 (frame_001)", got)
	}

	if _, err := src.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("exhausted source returned %v, want io.EOF", err)
	}
}

func TestDirSourceEmptyDirectory(t *testing.T) {
	if _, err := NewDirSource(t.TempDir()); err == nil {
		t.Error("empty directory accepted as a frame source")
	}
}

func TestDirSourceHonorsContext(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "frame.png"), 10)
	src, err := NewDirSource(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestHTTPSourceFetchesSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, img)
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, 0)
	frame, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if frame.Image.Bounds().Dx() != 4 {
		t.Errorf("frame width = %d, want 4", frame.Image.Bounds().Dx())
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL, 0)
	if _, err := src.Next(context.Background()); err == nil {
		t.Error("non-200 snapshot response did not error")
	}
}

// fakeSource emits a fixed number of frames as fast as it is polled.
type fakeSource struct {
	n       int
	emitted int
}

func (f *fakeSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if f.emitted >= f.n {
		return Frame{}, io.EOF
	}
	f.emitted++
	return Frame{At: time.Unix(int64(f.emitted), 0)}, nil
}

func (f *fakeSource) Close() error { return nil }

func TestPumpDropsStaleFramesForSlowConsumer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pump := StartPump(ctx, &fakeSource{n: 100})
	pump.Wait() // producer finishes, leaving only the newest frame queued

	var got []Frame
	for frame := range pump.Frames() {
		got = append(got, frame)
	}
	if len(got) == 0 {
		t.Fatal("no frames delivered")
	}
	if len(got) > 2 {
		t.Errorf("slow consumer received %d frames, want at most 2 with a single-slot queue", len(got))
	}
	last := got[len(got)-1]
	if !last.At.Equal(time.Unix(100, 0)) {
		t.Errorf("last delivered frame is %v, want the newest (t=100)", last.At)
	}
}

func TestPumpClosesOnSourceEOF(t *testing.T) {
	ctx := context.Background()
	pump := StartPump(ctx, &fakeSource{n: 1})

	frame, ok := <-pump.Frames()
	if !ok {
		t.Fatal("channel closed before delivering the frame")
	}
	if !frame.At.Equal(time.Unix(1, 0)) {
		t.Errorf("frame at %v, want t=1", frame.At)
	}
	if _, ok := <-pump.Frames(); ok {
		t.Error("channel should close after the source is exhausted")
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pump := StartPump(ctx, &fakeSource{n: 1 << 30})

	cancel()
	done := make(chan struct{})
	go func() {
		pump.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after context cancellation")
	}
}
