package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest describes a batch crawl loaded from a YAML file.
type Manifest struct {
	URLs     []string `yaml:"urls"`
	MaxPages int      `yaml:"max_pages"`
	Output   string   `yaml:"output"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	m.URLs = NormalizeURLs(m.URLs)
	if m.MaxPages < 0 {
		return nil, fmt.Errorf("manifest %s: max_pages cannot be negative", path)
	}

	return &m, nil
}

// ReadURLFile reads start URLs one per line. Blank lines and lines starting
// with # are ignored.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url file: %w", err)
	}

	return urls, nil
}

// NormalizeURLs trims entries and drops empty ones, keeping order.
func NormalizeURLs(raw []string) []string {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if cleaned := strings.TrimSpace(u); cleaned != "" {
			urls = append(urls, cleaned)
		}
	}
	return urls
}
