package processor

import (
	"fmt"
	"os"
)

func readAllBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("processor: failed to read %q: %w", path, err)
	}
	return data, nil
}

func writeAllBytes(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("processor: failed to write %q: %w", path, err)
	}
	return nil
}
