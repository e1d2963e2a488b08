// Package yamlstory loads story definitions from YAML files, decoding
// scenes with the same rules as the Lua front-end.
package yamlstory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/fabula/internal/script"
)

type storyFile struct {
	Name   string       `yaml:"name"`
	Scenes []sceneEntry `yaml:"scenes"`
}

// sceneEntry keys a scene definition. Scenes are a list, not a map, so
// declaration order survives the parse.
type sceneEntry struct {
	Key string         `yaml:"key"`
	Def map[string]any `yaml:",inline"`
}

// LoadFile parses a YAML story file.
func LoadFile(path string) (*script.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story %s: %w", path, err)
	}
	return parse(path, data)
}

// LoadDir loads every .yaml and .yml story under dir, sorted by
// filename.
func LoadDir(dir string) ([]*script.Story, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan story dir %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	var stories []*script.Story
	for _, path := range paths {
		story, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, nil
}

func parse(path string, data []byte) (*script.Story, error) {
	var file storyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse story %s: %w", path, err)
	}
	if len(file.Scenes) == 0 {
		return nil, fmt.Errorf("story %s defines no scenes", path)
	}

	name := file.Name
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	story := script.NewStory(name)
	for i, entry := range file.Scenes {
		if entry.Key == "" {
			return nil, fmt.Errorf("story %s scene %d: missing key", path, i)
		}
		sc, err := script.DecodeScene(entry.Key, entry.Def)
		if err != nil {
			return nil, fmt.Errorf("story %s: %w", path, err)
		}
		if err := story.Add(entry.Key, sc); err != nil {
			return nil, fmt.Errorf("story %s: %w", path, err)
		}
	}
	return story, nil
}
