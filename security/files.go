package security

import (
	"os"
	"path/filepath"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

// SanitizeLogsDir rewrites any log or transcript file under dir whose
// contents change under Sanitize. Run before anything under dir leaves
// the machine. Returns how many files were rewritten.
func SanitizeLogsDir(dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".log", ".txt", ".json", ".jsonl":
		default:
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		clean := Sanitize(string(data))
		if clean == string(data) {
			return nil
		}
		if err := os.WriteFile(path, []byte(clean), info.Mode()); err != nil {
			return errors.Wrapf(err, "failed to rewrite %s", path)
		}
		logger.Warnw("redacted secrets from log file", logger.FieldFile, path)
		count++
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return count, errors.Wrap(err, "failed to sanitize logs directory")
	}
	return count, nil
}
