package galaxy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// APIKeyEnv is the environment variable holding the API key.
const APIKeyEnv = "GALAXY_API_KEY"

// Key file locations in the user's home directory, in order of preference.
var keyFiles = []string{
	".galaxy_api_key",
	filepath.Join(".config", "labexec", "api_key"),
}

// LoadAPIKeyFromEnv loads the API key from the GALAXY_API_KEY environment variable.
func LoadAPIKeyFromEnv() (string, error) {
	key := strings.TrimSpace(os.Getenv(APIKeyEnv))
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// LoadAPIKeyFromFile loads the API key from the standard key file locations.
func LoadAPIKeyFromFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return loadAPIKeyFrom(home)
}

func loadAPIKeyFrom(dir string) (string, error) {
	for _, name := range keyFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			key := strings.TrimSpace(string(data))
			if key != "" {
				return key, nil
			}
		}
	}
	return "", ErrNoAPIKey
}

// LoadAPIKey attempts to load an API key from environment or file.
// Order of precedence:
// 1. GALAXY_API_KEY environment variable
// 2. ~/.galaxy_api_key file
// 3. ~/.config/labexec/api_key file
func LoadAPIKey() (string, error) {
	key, err := LoadAPIKeyFromEnv()
	if err == nil {
		return key, nil
	}
	return LoadAPIKeyFromFile()
}

// MaskAPIKey returns key with all but its last four characters hidden, for
// logging.
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
