package definition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// Load reads every *.json file in dir and returns the definitions that
// parsed and compiled cleanly, in file-name order so load order is
// deterministic. Unreadable or malformed files are logged and skipped; a
// missing directory yields an empty slice. Load never fails the startup of
// the rest of the system.
func Load(dir string, logger *log.Logger) []*Definition {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read definitions directory", "dir", dir, "error", err)
		}
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var defs []*Definition
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read definition file", "file", path, "error", err)
			continue
		}

		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			logger.Warn("Skipping malformed definition file", "file", path, "error", err)
			continue
		}
		if err := def.Compile(); err != nil {
			logger.Warn("Skipping definition with invalid patterns", "file", path, "error", err)
			continue
		}

		logger.Debug("Loaded bank definition", "file", name, "bank", def.BankName)
		defs = append(defs, &def)
	}

	logger.Info("Loaded bank definitions", "dir", dir, "count", len(defs))
	return defs
}
