package stage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	outLogSuffix = "_out.log"
	errLogSuffix = "_err.log"
)

func isEmptyFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir() && info.Size() == 0
}

func fileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil || info.Size() < 0 {
		return 0
	}

	return uint64(info.Size())
}

// CleanLogs removes every log pair of dir whose err log is empty and returns the removed paths.
func CleanLogs(dir string, logger zerolog.Logger) ([]string, error) {
	errLogs, err := filepath.Glob(filepath.Join(dir, "*"+errLogSuffix))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list logs of %s", dir)
	}

	var (
		removed []string
		freed   uint64
	)
	for _, errLog := range errLogs {
		if !isEmptyFile(errLog) {
			continue
		}
		outLog := strings.TrimSuffix(errLog, errLogSuffix) + outLogSuffix
		if exists(outLog) {
			freed += fileSize(outLog)
			if err := os.Remove(outLog); err != nil {
				return removed, errors.Wrapf(err, "unable to remove %s", outLog)
			}
			removed = append(removed, outLog)
		} else {
			logger.Warn().Str("log", outLog).Msg("out log not found")
		}
		if err := os.Remove(errLog); err != nil {
			return removed, errors.Wrapf(err, "unable to remove %s", errLog)
		}
		removed = append(removed, errLog)
	}

	if len(removed) > 0 {
		logger.Info().Str("dir", dir).Int("files", len(removed)).Str("freed", humanize.Bytes(freed)).Msg("removed empty logs")
	}

	return removed, nil
}

// RemoveIntermediates removes files. Logs go by pair and only when the err log is empty.
// Directories are removed only when empty. Missing paths are skipped.
func RemoveIntermediates(files []string, logger zerolog.Logger) error {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		switch {
		case strings.HasSuffix(file, outLogSuffix), strings.HasSuffix(file, errLogSuffix):
			prefix := strings.TrimSuffix(strings.TrimSuffix(file, outLogSuffix), errLogSuffix)
			errLog := prefix + errLogSuffix
			if !isEmptyFile(errLog) {
				logger.Debug().Str("log", errLog).Msg("keeping logs with errors")

				continue
			}
			for _, log := range []string{prefix + outLogSuffix, errLog} {
				if err := os.Remove(log); err != nil && !os.IsNotExist(err) {
					return errors.Wrapf(err, "unable to remove %s", log)
				}
			}
		case info.IsDir():
			if err := os.Remove(file); err != nil {
				logger.Debug().Str("dir", file).Msg("keeping non empty directory")
			}
		default:
			if err := os.Remove(file); err != nil {
				return errors.Wrapf(err, "unable to remove %s", file)
			}
		}
	}

	return nil
}
