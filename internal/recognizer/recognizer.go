// Package recognizer wires the pipeline together: detector, feature
// backend, gallery cache, matcher, attendance ledger and store. The cmd
// and web layers only ever talk to this package.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/amosdev/attendance/internal/attendance"
	"github.com/amosdev/attendance/internal/camera"
	"github.com/amosdev/attendance/internal/config"
	"github.com/amosdev/attendance/internal/detect"
	"github.com/amosdev/attendance/internal/feature"
	"github.com/amosdev/attendance/internal/gallery"
	"github.com/amosdev/attendance/internal/match"
	"github.com/amosdev/attendance/internal/store"
)

// ErrDuplicateIdentity is returned when registering a name that already
// has enrollment samples and replace was not requested.
var ErrDuplicateIdentity = errors.New("identity already registered")

// frameTimeout bounds one recognition in continuous mode so a hung
// backend cannot stall the camera loop.
const frameTimeout = 10 * time.Second

// Event is one recognition outcome, produced per frame in continuous
// mode and once per call in single-shot mode.
type Event struct {
	At     time.Time        `json:"at"`
	Result match.Result     `json:"result"`
	Mark   *attendance.Mark `json:"mark,omitempty"` // set when a new mark was recorded
	NoFace bool             `json:"no_face,omitempty"`
	Err    error            `json:"-"`
}

// Recognizer owns the recognition pipeline and its side effects.
type Recognizer struct {
	cfg      *config.Config
	backend  feature.Backend
	detector detect.Detector
	cache    *gallery.Cache
	matcher  *match.Matcher
	ledger   *attendance.Ledger
	store    store.Store
}

// New assembles a recognizer from already-constructed parts.
func New(
	cfg *config.Config,
	backend feature.Backend,
	detector detect.Detector,
	cache *gallery.Cache,
	matcher *match.Matcher,
	ledger *attendance.Ledger,
	st store.Store,
) *Recognizer {
	return &Recognizer{
		cfg:      cfg,
		backend:  backend,
		detector: detector,
		cache:    cache,
		matcher:  matcher,
		ledger:   ledger,
		store:    st,
	}
}

// Extractor builds the gallery extractor for the given pipeline parts.
// It decodes an enrollment image, detects the largest face and extracts
// its feature vector, so cached vectors match what recognition computes.
func Extractor(backend feature.Backend, detector detect.Detector) gallery.Extractor {
	return &fileExtractor{backend: backend, detector: detector}
}

type fileExtractor struct {
	backend  feature.Backend
	detector detect.Detector
}

func (e *fileExtractor) Name() string { return e.backend.Name() }
func (e *fileExtractor) Dim() int     { return e.backend.Dim() }

func (e *fileExtractor) ExtractFile(ctx context.Context, path string) ([]float32, error) {
	img, err := decodeImageFile(path)
	if err != nil {
		return nil, err
	}
	box, err := largestFace(ctx, e.detector, img)
	if err != nil {
		return nil, err
	}
	return e.backend.Extract(ctx, img, box)
}

// Register enrolls a person from one or more face images. The images are
// copied into the gallery directory, their features cached and a user row
// ensured in the store. With replace set, the previous enrollment and its
// gallery images are dropped once the new images pass the quality gate;
// otherwise a second registration under the same name fails.
func (r *Recognizer) Register(ctx context.Context, name string, imagePaths []string, replace bool) (store.User, error) {
	if len(imagePaths) == 0 {
		return store.User{}, errors.New("at least one face image is required")
	}
	key := gallery.NormalizeKey(name)
	if key == "" {
		return store.User{}, fmt.Errorf("name %q normalizes to an empty key", name)
	}

	if r.cache.Has(key) && !replace {
		return store.User{}, fmt.Errorf("%w: %s", ErrDuplicateIdentity, key)
	}

	// Validate every image before touching the existing enrollment, so a
	// rejected replacement leaves the previous one intact.
	for _, path := range imagePaths {
		if err := r.checkEnrollmentImage(ctx, path); err != nil {
			return store.User{}, fmt.Errorf("rejecting %s: %w", path, err)
		}
	}

	if replace && r.cache.Has(key) {
		old, err := r.cache.Get(key)
		if err != nil {
			return store.User{}, err
		}
		if err := r.cache.Invalidate(key); err != nil {
			return store.User{}, err
		}
		// Remove the superseded gallery files too, otherwise the next
		// staleness sweep rediscovers them and the old face comes back.
		for _, s := range old {
			if err := os.Remove(s.Source); err != nil && !os.IsNotExist(err) {
				log.Printf("removing superseded image %s: %v", s.Source, err)
			}
		}
	}

	stored := make([]string, 0, len(imagePaths))
	for i, path := range imagePaths {
		dst, err := r.copyToGallery(path, key, i)
		if err != nil {
			return store.User{}, err
		}
		stored = append(stored, dst)
	}

	if _, err := r.cache.Put(ctx, key, stored); err != nil {
		return store.User{}, fmt.Errorf("caching features for %s: %w", key, err)
	}

	user, err := r.store.EnsureUser(ctx, store.User{Name: key, DisplayName: name})
	if err != nil {
		return store.User{}, err
	}
	log.Printf("registered %s with %d face image(s)", key, len(stored))
	return user, nil
}

// checkEnrollmentImage runs the quality gate a registration image must
// pass: decodable, a detectable face, usable brightness.
func (r *Recognizer) checkEnrollmentImage(ctx context.Context, path string) error {
	img, err := decodeImageFile(path)
	if err != nil {
		return err
	}
	box, err := largestFace(ctx, r.detector, img)
	if err != nil {
		return err
	}
	return feature.CheckQuality(img, box)
}

func (r *Recognizer) copyToGallery(src, key string, n int) (string, error) {
	if err := os.MkdirAll(r.cfg.Data.FacesDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create gallery directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("%s_%s.jpg", key, stamp)
	if n > 0 {
		name = fmt.Sprintf("%s_%d_%s.jpg", key, n, stamp)
	}
	dst := filepath.Join(r.cfg.Data.FacesDir(), name)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to copy enrollment image: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// Recognize runs the pipeline on a single frame: detect the largest
// face, extract, match and, on a match, record attendance. A frame with
// no face is a valid outcome, not an error.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (Event, error) {
	return r.RecognizeAt(ctx, img, time.Now())
}

// RecognizeAt is Recognize with an explicit sighting time, for frames
// that carry their own capture timestamp. The attendance mark and the
// emitted event both use that time.
func (r *Recognizer) RecognizeAt(ctx context.Context, img image.Image, at time.Time) (Event, error) {
	start := time.Now()
	event, err := r.recognize(ctx, img, at)
	recognizeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		recognitionsTotal.WithLabelValues("error").Inc()
	case event.NoFace:
		recognitionsTotal.WithLabelValues("no_face").Inc()
	case event.Result.Matched:
		recognitionsTotal.WithLabelValues("matched").Inc()
	default:
		recognitionsTotal.WithLabelValues("unmatched").Inc()
	}
	return event, err
}

func (r *Recognizer) recognize(ctx context.Context, img image.Image, at time.Time) (Event, error) {
	event := Event{At: at}

	box, err := largestFace(ctx, r.detector, img)
	if errors.Is(err, detect.ErrNoFace) {
		event.NoFace = true
		return event, nil
	}
	if err != nil {
		return event, err
	}

	probe, err := r.backend.Extract(ctx, img, box)
	if err != nil {
		if errors.Is(err, feature.ErrFaceTooSmall) {
			// Treat an unusable region like an absent face.
			event.NoFace = true
			return event, nil
		}
		return event, err
	}

	result, err := r.matcher.Match(r.cache.Snapshot(), probe)
	if err != nil {
		return event, err
	}
	event.Result = result
	if !result.Matched {
		return event, nil
	}

	mark, recorded := r.ledger.Record(result.Identity, event.At)
	if recorded {
		event.Mark = &mark
		marksTotal.Inc()
		if err := r.store.InsertAttendance(ctx, store.Row{
			UserName: mark.Identity,
			Day:      mark.Day,
			At:       mark.At,
			Late:     mark.Late,
		}); err != nil {
			// Ledger state stands; the row is retried on next restart
			// via Prime from whatever did get persisted.
			log.Printf("persisting attendance for %s failed: %v", mark.Identity, err)
		}
	}
	return event, nil
}

// Watch runs continuous recognition over a frame source until the
// context ends or the source is exhausted. Every frame produces one
// event on the returned channel, which closes when the loop stops.
func (r *Recognizer) Watch(ctx context.Context, src camera.Source) <-chan Event {
	events := make(chan Event)
	pump := camera.StartPump(ctx, src)

	go func() {
		defer close(events)
		for frame := range pump.Frames() {
			frameCtx, cancel := context.WithTimeout(ctx, frameTimeout)
			event, err := r.RecognizeAt(frameCtx, frame.Image, frame.At)
			cancel()
			if err != nil {
				event.Err = err
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}

// SweepStale re-checks gallery freshness and rebuilds changed identities.
// Exposed for the cache command and the nightly job.
func (r *Recognizer) SweepStale(ctx context.Context) ([]string, error) {
	rebuilt, err := r.cache.RebuildIfStale(ctx)
	if err != nil {
		return nil, err
	}
	cacheRebuildsTotal.Add(float64(len(rebuilt)))
	if len(rebuilt) > 0 {
		log.Printf("feature cache refreshed for %d identities: %v", len(rebuilt), rebuilt)
	}
	return rebuilt, nil
}

// PrimeLedger seeds today's ledger from persisted marks so restarts do
// not duplicate attendance.
func (r *Recognizer) PrimeLedger(ctx context.Context, day string) error {
	rows, err := r.store.ListAttendance(ctx, day)
	if err != nil {
		return fmt.Errorf("loading persisted attendance: %w", err)
	}
	marks := make([]attendance.Mark, 0, len(rows))
	for _, row := range rows {
		marks = append(marks, attendance.Mark{
			Identity: row.UserName,
			Day:      row.Day,
			At:       row.At,
			Late:     row.Late,
		})
	}
	r.ledger.Prime(marks)
	return nil
}

// largestFace picks the biggest detected region, the subject closest to
// the camera. ErrNoFace when the detector finds nothing.
func largestFace(ctx context.Context, d detect.Detector, img image.Image) (image.Rectangle, error) {
	boxes, err := d.Detect(ctx, img)
	if err != nil {
		return image.Rectangle{}, err
	}
	if len(boxes) == 0 {
		return image.Rectangle{}, detect.ErrNoFace
	}

	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Dx()*b.Dy() > best.Dx()*best.Dy() {
			best = b
		}
	}
	return best, nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
