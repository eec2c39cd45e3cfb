// Package dataloader batches image datasets with background prefetch
// workers.
package dataloader

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/petal-ml/petal/internal/tensor"
	"github.com/petal-ml/petal/internal/vision/dataset"
	"github.com/petal-ml/petal/internal/vision/transform"
)

// Batch is one training step's worth of preprocessed data: images in
// [batch, 3, S, S] layout and the matching class indices.
type Batch struct {
	Images *tensor.RawTensor
	Labels []int
}

// Config controls batching and preprocessing.
type Config struct {
	BatchSize int
	Workers   int  // prefetch workers; minimum 1
	ImageSize int  // square output edge S
	Shuffle   bool // reshuffle sample order each epoch
	Seed      int64

	// Transform runs image-space preprocessing before tensor
	// conversion and ImageNet normalization. It is applied from all
	// workers concurrently; random transforms must draw from a
	// transform.NewRand generator.
	Transform transform.Transform
}

// Loader streams shuffled batches from an ImageFolder. Decoding and
// preprocessing happen on background workers so the training loop
// consumes ready batches from a channel.
type Loader struct {
	folder *dataset.ImageFolder
	cfg    Config
	rng    *rand.Rand

	mu  sync.Mutex
	err error
}

// New creates a loader over folder.
func New(folder *dataset.ImageFolder, cfg Config) *Loader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Loader{
		folder: folder,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// NumBatches returns the batch count per epoch, counting a trailing
// partial batch.
func (l *Loader) NumBatches() int {
	return (l.folder.Len() + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Err returns the first error of the most recent epoch, after its
// channel has been drained.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loader) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// Batches starts one epoch and returns its batch channel. The channel
// closes when the epoch completes, the context is canceled, or a
// sample fails to load; check Err afterwards.
func (l *Loader) Batches(ctx context.Context) <-chan Batch {
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()

	indices := make([]int, l.folder.Len())
	for i := range indices {
		indices[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	jobs := make(chan []int, l.cfg.Workers)
	out := make(chan Batch, l.cfg.Workers)

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(jobs)
		for start := 0; start < len(indices); start += l.cfg.BatchSize {
			end := start + l.cfg.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			select {
			case jobs <- indices[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < l.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIndices := range jobs {
				batch, err := l.loadBatch(batchIndices)
				if err != nil {
					l.setErr(err)
					cancel()
					return
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out
}

func (l *Loader) loadBatch(indices []int) (Batch, error) {
	s := l.cfg.ImageSize
	images := tensor.Zeros(tensor.Shape{len(indices), 3, s, s}, tensor.CPU)
	labels := make([]int, len(indices))
	sampleSize := 3 * s * s

	for i, idx := range indices {
		sample := l.folder.Sample(idx)
		img, err := l.loadImage(sample.Path)
		if err != nil {
			return Batch{}, err
		}

		shape := img.Shape()
		if shape[1] != s || shape[2] != s {
			return Batch{}, fmt.Errorf("sample %s: got %dx%d after preprocessing, want %dx%d",
				sample.Path, shape[2], shape[1], s, s)
		}

		copy(images.AsFloat32()[i*sampleSize:(i+1)*sampleSize], img.AsFloat32())
		labels[i] = sample.Label
	}

	return Batch{Images: images, Labels: labels}, nil
}

func (l *Loader) loadImage(path string) (*tensor.RawTensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	if l.cfg.Transform != nil {
		img = l.cfg.Transform.Apply(img)
	}

	t := transform.ToTensor(img)
	transform.Normalize(t, transform.ImageNetMean, transform.ImageNetStd)
	return t, nil
}
