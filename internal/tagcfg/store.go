package tagcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Load reads the configuration document from path. A missing file, invalid
// JSON or any I/O error is logged and the documented default is returned;
// Load never fails to the caller.
func Load(path string) Document {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("Config file not found, using defaults")
		} else {
			log.Error().Err(err).Str("path", path).Msg("Failed to read config file, using defaults")
		}
		return DefaultDocument()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to decode config file, using defaults")
		return DefaultDocument()
	}

	doc.Normalize()
	log.Info().Str("path", path).Int("tags", len(doc.Tags)).Msg("Configuration loaded")
	return doc
}

// Save writes the document to path as indented JSON. The write goes through
// a temp file in the same directory followed by a rename, so a crash cannot
// leave a truncated config behind. When the document's fingerprint differs
// from what is currently on disk, a versioned snapshot
// (<name>_v<N>.json) is written alongside before the main file is replaced.
func Save(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if changed, err := contentChanged(path, doc); err == nil && changed {
		if snap, err := writeSnapshot(path, data); err != nil {
			log.Warn().Err(err).Msg("Failed to write versioned config snapshot")
		} else if snap != "" {
			log.Info().Str("path", snap).Msg("Versioned config snapshot written")
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}

	log.Info().Str("path", path).Int("tags", len(doc.Tags)).Msg("Configuration saved")
	return nil
}

// contentChanged compares the fingerprint of the document on disk with doc.
// A missing or unreadable file counts as changed.
func contentChanged(path string, doc Document) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return true, nil
	}
	var current Document
	if err := json.Unmarshal(data, &current); err != nil {
		return true, nil
	}
	oldHash, err := Hash(current)
	if err != nil {
		return false, err
	}
	newHash, err := Hash(doc)
	if err != nil {
		return false, err
	}
	return oldHash != newHash, nil
}

// writeSnapshot writes data to the first free <name>_v<N>.json next to path.
func writeSnapshot(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for n := 1; ; n++ {
		snap := filepath.Join(dir, fmt.Sprintf("%s_v%d.json", base, n))
		if _, err := os.Stat(snap); err == nil {
			continue
		}
		return snap, os.WriteFile(snap, data, 0644)
	}
}
