// Package fabula parses command flags and runs an interactive story
// session on the terminal.
package fabula

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/louisbranch/fabula/internal/game"
	"github.com/louisbranch/fabula/internal/platform/config"
	"github.com/louisbranch/fabula/internal/platform/otel"
	"github.com/louisbranch/fabula/internal/save"
	savesqlite "github.com/louisbranch/fabula/internal/save/sqlite"
	"github.com/louisbranch/fabula/internal/script"
	"github.com/louisbranch/fabula/internal/script/yamlstory"
	"github.com/louisbranch/fabula/internal/state"
)

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	fs.StringVar(&cfg.StoryDir, "stories", cfg.StoryDir, "Directory holding .lua and .yaml story files")
	fs.StringVar(&cfg.StartScene, "start", cfg.StartScene, "Scene key the session opens at")
	fs.StringVar(&cfg.SavePath, "saves", cfg.SavePath, "SQLite file holding save slots")
	fs.StringVar(&cfg.SaveSlot, "slot", cfg.SaveSlot, "Default save slot")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Run loads the stories, opens the save store, and plays a session on
// stdin/stdout until the player quits or the context ends.
func Run(ctx context.Context, cfg config.Config) error {
	otelEndpoint := ""
	if cfg.OTELEnabled {
		otelEndpoint = cfg.OTELEndpoint
	}
	shutdown, err := otel.Setup(ctx, "fabula", otelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	eng := game.New(state.Game{})
	if err := LoadStories(eng, cfg.StoryDir); err != nil {
		return err
	}

	saves, err := savesqlite.Open(cfg.SavePath)
	if err != nil {
		return fmt.Errorf("open save store: %w", err)
	}
	defer func() {
		if err := saves.Close(); err != nil {
			log.Printf("close save store: %v", err)
		}
	}()

	session := &Session{
		Engine: eng,
		Saves:  saves,
		Slot:   cfg.SaveSlot,
		In:     os.Stdin,
		Out:    os.Stdout,
	}
	return session.Play(ctx, cfg.StartScene)
}

// LoadStories registers every story under dir with the engine's scene
// resolver. Lua and YAML stories share the directory.
func LoadStories(eng *game.Engine, dir string) error {
	luaStories, err := script.LoadDir(dir)
	if err != nil {
		return err
	}
	yamlStories, err := yamlstory.LoadDir(dir)
	if err != nil {
		return err
	}

	total := 0
	for _, story := range append(luaStories, yamlStories...) {
		eng.Scenes.Register(story.Entries())
		total += len(story.Scenes)
	}
	if total == 0 {
		return fmt.Errorf("no scenes found under %s", dir)
	}
	log.Printf("loaded %d scenes from %s", total, dir)
	return nil
}

// Session plays one story interactively over a line-based transport.
type Session struct {
	Engine *game.Engine
	Saves  save.Store
	Slot   string
	In     io.Reader
	Out    io.Writer
}

// Play starts at startScene and loops until quit, EOF, or context
// cancellation. Quitting autosaves to the session slot.
func (s *Session) Play(ctx context.Context, startScene string) error {
	if !s.Engine.Start(ctx, startScene) {
		return fmt.Errorf("start scene %q not found", startScene)
	}
	s.render()

	scanner := bufio.NewScanner(s.In)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
	return scanner.Err()
}

// handle executes one command line and reports whether the session is
// over.
func (s *Session) handle(ctx context.Context, line string) bool {
	switch line {
	case "quit", "q":
		if err := save.Capture(ctx, s.Saves, s.Engine, s.Slot); err != nil {
			fmt.Fprintf(s.Out, "Autosave failed: %v\n", err)
		}
		fmt.Fprintln(s.Out, "Goodbye.")
		return true
	case "look", "l":
		s.render()
		return false
	case "save":
		if err := save.Capture(ctx, s.Saves, s.Engine, s.Slot); err != nil {
			fmt.Fprintf(s.Out, "Save failed: %v\n", err)
			return false
		}
		fmt.Fprintf(s.Out, "Saved to slot %q.\n", s.Slot)
		return false
	case "load":
		if err := save.Restore(ctx, s.Saves, s.Engine, s.Slot); err != nil {
			if errors.Is(err, save.ErrNotFound) {
				fmt.Fprintf(s.Out, "Nothing saved in slot %q yet.\n", s.Slot)
			} else {
				fmt.Fprintf(s.Out, "Load failed: %v\n", err)
			}
			return false
		}
		fmt.Fprintf(s.Out, "Loaded slot %q.\n", s.Slot)
		s.render()
		return false
	}

	index, err := strconv.Atoi(line)
	if err != nil {
		fmt.Fprintln(s.Out, "Enter a choice number, or save, load, look, quit.")
		return false
	}
	s.choose(ctx, index-1)
	return false
}

func (s *Session) choose(ctx context.Context, index int) {
	// The menu numbers available choices; Choose addresses the scene's
	// full list, so map the menu index back.
	current := s.Engine.Director.Current()
	if current == nil || index < 0 {
		fmt.Fprintln(s.Out, "No such choice.")
		return
	}
	g := s.Engine.Store.State()
	absolute := -1
	seen := 0
	for i, choice := range current.Choices {
		if !choice.Available(g) {
			continue
		}
		if seen == index {
			absolute = i
			break
		}
		seen++
	}
	if absolute == -1 {
		fmt.Fprintln(s.Out, "No such choice.")
		return
	}
	response, err := s.Engine.Director.Choose(ctx, absolute)
	if err != nil {
		fmt.Fprintf(s.Out, "That didn't work: %v\n", err)
		return
	}
	if response != "" {
		fmt.Fprintln(s.Out, response)
	}
	s.render()
}

// render prints the current scene and its available choices.
func (s *Session) render() {
	current := s.Engine.Director.Current()
	if current == nil {
		return
	}
	g := s.Engine.Store.State()

	if current.Title != "" {
		fmt.Fprintf(s.Out, "\n== %s ==\n", current.Title)
	}
	if content := current.ContentFor(g); content != "" {
		fmt.Fprintln(s.Out, content)
	}
	for i, choice := range s.Engine.Director.AvailableChoices() {
		fmt.Fprintf(s.Out, "%d) %s\n", i+1, choice.LabelFor(g))
	}
}
