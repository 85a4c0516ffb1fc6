package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// loadEnvFiles loads .env and .env.local from the config directory and the
// working directory. Existing process environment variables always win.
func loadEnvFiles(configDir string) {
	seen := make(map[string]bool)
	for _, dir := range []string{configDir, "."} {
		for _, name := range []string{".env", ".env.local"} {
			path, err := filepath.Abs(filepath.Join(dir, name))
			if err != nil || seen[path] {
				continue
			}
			seen[path] = true
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				slog.Warn("Failed to load env file", logfields.Path(path), logfields.Error(err))
				continue
			}
			slog.Debug("Loaded environment variables", logfields.Path(path))
		}
	}
}
