// Package dataset loads folder-per-class image datasets and their
// label metadata.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultExtensions are the image formats the directory scan accepts.
var defaultExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Sample is one dataset entry: an image path and its class index.
type Sample struct {
	Path  string
	Label int
}

// ImageFolder is a dataset rooted at a directory whose immediate
// subdirectories are class labels:
//
//	root/
//	  1/   image_06734.jpg ...
//	  10/  image_07090.jpg ...
//	  74/  image_00351.jpg ...
//
// Classes are sorted lexicographically before indices are assigned, so
// the class-to-index mapping is deterministic for a given directory
// layout. The mapping assigned at training time travels inside the
// checkpoint; evaluation and inference must reuse it rather than
// rescanning, since a different directory could produce different
// indices for the same labels.
type ImageFolder struct {
	root       string
	samples    []Sample
	classes    []string
	classToIdx map[string]int
}

// NewImageFolder scans root and assigns class indices from the sorted
// class directory names.
func NewImageFolder(root string) (*ImageFolder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan dataset root: %w", err)
	}

	var classes []string
	for _, entry := range entries {
		if entry.IsDir() {
			classes = append(classes, entry.Name())
		}
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no class directories under %s", root)
	}
	sort.Strings(classes)

	classToIdx := make(map[string]int, len(classes))
	for i, class := range classes {
		classToIdx[class] = i
	}

	return newImageFolder(root, classes, classToIdx)
}

// NewImageFolderWithMapping scans root but labels samples with an
// existing class-to-index mapping, for validation and test splits that
// must agree with the training split. Classes present on disk but
// absent from the mapping are an error.
func NewImageFolderWithMapping(root string, classToIdx map[string]int) (*ImageFolder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan dataset root: %w", err)
	}

	var classes []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := classToIdx[entry.Name()]; !ok {
			return nil, fmt.Errorf("class %q in %s is not in the training mapping", entry.Name(), root)
		}
		classes = append(classes, entry.Name())
	}
	sort.Strings(classes)

	return newImageFolder(root, classes, classToIdx)
}

func newImageFolder(root string, classes []string, classToIdx map[string]int) (*ImageFolder, error) {
	folder := &ImageFolder{
		root:       root,
		classes:    classes,
		classToIdx: classToIdx,
	}

	for _, class := range classes {
		classDir := filepath.Join(root, class)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("scan class %s: %w", class, err)
		}

		label := classToIdx[class]
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if !defaultExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			folder.samples = append(folder.samples, Sample{
				Path:  filepath.Join(classDir, entry.Name()),
				Label: label,
			})
		}
	}

	if len(folder.samples) == 0 {
		return nil, fmt.Errorf("no images found under %s", root)
	}
	return folder, nil
}

// Len returns the number of samples.
func (f *ImageFolder) Len() int {
	return len(f.samples)
}

// Sample returns the sample at index.
func (f *ImageFolder) Sample(index int) Sample {
	return f.samples[index]
}

// Classes returns the sorted class labels.
func (f *ImageFolder) Classes() []string {
	return f.classes
}

// NumClasses returns the number of classes in the mapping.
func (f *ImageFolder) NumClasses() int {
	return len(f.classToIdx)
}

// ClassToIdx returns the label-to-index mapping. Callers must not
// mutate it.
func (f *ImageFolder) ClassToIdx() map[string]int {
	return f.classToIdx
}
