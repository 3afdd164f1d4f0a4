// Package naming implements the file name conventions shared by the pipeline stages.
package naming

import (
	"path/filepath"
	"strings"
)

const (
	nrrdExt      = ".nrrd"
	niftiGzExt   = ".nii.gz"
	niftiExt     = ".nii"
	mirrorTag    = "_mirror"
	resampledTag = "_resampled"
	completeTag  = "complete_"
)

// ID returns the basename of path cut at the first ".nrrd".
func ID(path string) string {
	base := filepath.Base(path)
	if idx := strings.Index(base, nrrdExt); idx >= 0 {
		return base[:idx]
	}

	return Stem(base)
}

// Mirror returns the reflected image and reflection matrix of path in outDir.
func Mirror(path, outDir string) (image, matrix string) {
	id := ID(path)

	return filepath.Join(outDir, id+mirrorTag+nrrdExt), filepath.Join(outDir, id+mirrorTag+".mat")
}

// IsMirror reports whether path names a reflected image.
func IsMirror(path string) bool {
	return strings.Contains(filepath.Base(path), mirrorTag)
}

// Resampled returns the resampled image of path in outDir. voxel is kept as typed.
func Resampled(path, outDir, voxel string) string {
	return filepath.Join(outDir, ID(path)+resampledTag+"_"+voxel+nrrdExt)
}

func cut(s, sep string) string {
	if idx := strings.Index(s, sep); idx >= 0 {
		return s[:idx]
	}

	return s
}

// CleanName returns the metadata key of a resampled or mirrored image.
func CleanName(path string) string {
	base := filepath.Base(path)
	base = cut(base, resampledTag)
	base = cut(base, mirrorTag)

	return cut(base, nrrdExt) + nrrdExt
}

// OriginalName returns the clean database file a template result was built from.
func OriginalName(path string) string {
	base := filepath.Base(path)
	base = cut(base, resampledTag)
	base = strings.TrimPrefix(base, completeTag)

	return cut(base, nrrdExt) + nrrdExt
}

// BaseFile returns the prefix shared by the outputs registered from one sample.
func BaseFile(path string) string {
	base := filepath.Base(path)
	if idx := strings.Index(base, nrrdExt); idx >= 0 {
		return base[:idx+len(nrrdExt)]
	}

	// layouts predating the .nrrd infix name files <base>Warp.nii.gz and <base>Affine.txt
	base = strings.TrimSuffix(base, niftiGzExt)
	for _, tag := range []string{"InverseWarp", "Warp", "deformed", "repaired"} {
		base = strings.TrimSuffix(base, tag)
	}

	return base
}

// IsComplete reports whether the base file of path was registered from id.
func IsComplete(path, id string) bool {
	return strings.HasPrefix(filepath.Base(path), completeTag+id)
}

// Stem returns the basename without its image extension.
func Stem(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{niftiGzExt, niftiExt, nrrdExt} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the image extension of path, ".nii.gz" included.
func Ext(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, niftiGzExt) {
		return niftiGzExt
	}

	return filepath.Ext(base)
}

// TrimImageExt returns path without its image extension, used as log prefix.
func TrimImageExt(path string) string {
	return strings.TrimSuffix(path, Ext(path))
}
