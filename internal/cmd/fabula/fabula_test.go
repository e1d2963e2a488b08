package fabula

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/fabula/internal/content"
	"github.com/louisbranch/fabula/internal/effect"
	"github.com/louisbranch/fabula/internal/game"
	"github.com/louisbranch/fabula/internal/save"
	"github.com/louisbranch/fabula/internal/scene"
	"github.com/louisbranch/fabula/internal/state"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("fabula", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.StoryDir != "stories" {
		t.Fatalf("expected default story dir, got %q", cfg.StoryDir)
	}
	if cfg.StartScene != "start" {
		t.Fatalf("expected default start scene, got %q", cfg.StartScene)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("FABULA_STORY_DIR", "/tmp/from-env")

	fs := flag.NewFlagSet("fabula", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-stories", "/tmp/from-flag", "-slot", "two"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.StoryDir != "/tmp/from-flag" {
		t.Fatalf("expected flag to win over env, got %q", cfg.StoryDir)
	}
	if cfg.SaveSlot != "two" {
		t.Fatalf("expected slot override, got %q", cfg.SaveSlot)
	}
}

func newSessionEngine() *game.Engine {
	eng := game.New(state.Game{Vars: map[string]any{"gold": 10}})
	eng.Scenes.Register(map[string]content.Entry[*scene.Scene]{
		"start": content.Value(&scene.Scene{
			Title:   "The Gate",
			Content: "A guard blocks the way.",
			Choices: []scene.Choice{
				{
					Label:  "Bribe the guard",
					Target: "courtyard",
					Guard: func(g *state.Game) bool {
						n, _ := effect.Lookup(g, "gold")
						v, ok := effect.Number(n)
						return ok && v >= 5
					},
					Effects: []effect.Effect{
						{Type: effect.TypeDecrement, Variable: "gold", Value: 5},
					},
				},
				{Label: "Wait", Response: "The guard ignores you."},
			},
		}),
		"courtyard": content.Value(&scene.Scene{
			Title:   "Courtyard",
			Content: "Past the gate at last.",
		}),
	})
	return eng
}

type sessionStore struct {
	records map[string]save.Record
}

func newSessionStore() *sessionStore {
	return &sessionStore{records: map[string]save.Record{}}
}

func (s *sessionStore) Put(_ context.Context, rec save.Record) error {
	s.records[rec.Slot] = rec
	return nil
}

func (s *sessionStore) Get(_ context.Context, slot string) (save.Record, error) {
	rec, ok := s.records[slot]
	if !ok {
		return save.Record{}, save.ErrNotFound
	}
	return rec, nil
}

func (s *sessionStore) List(_ context.Context) ([]save.Record, error) { return nil, nil }
func (s *sessionStore) Delete(_ context.Context, _ string) error      { return nil }

func playSession(t *testing.T, eng *game.Engine, input string) string {
	t.Helper()
	var out bytes.Buffer
	session := &Session{
		Engine: eng,
		Saves:  newSessionStore(),
		Slot:   "auto",
		In:     strings.NewReader(input),
		Out:    &out,
	}
	if err := session.Play(context.Background(), "start"); err != nil {
		t.Fatalf("play: %v", err)
	}
	return out.String()
}

func TestSessionRendersSceneAndChoices(t *testing.T) {
	out := playSession(t, newSessionEngine(), "quit\n")

	if !strings.Contains(out, "== The Gate ==") {
		t.Fatalf("expected scene title, got %q", out)
	}
	if !strings.Contains(out, "1) Bribe the guard") || !strings.Contains(out, "2) Wait") {
		t.Fatalf("expected numbered choices, got %q", out)
	}
	if !strings.Contains(out, "Goodbye.") {
		t.Fatalf("expected quit message, got %q", out)
	}
}

func TestSessionChoiceTransitions(t *testing.T) {
	eng := newSessionEngine()
	out := playSession(t, eng, "1\nquit\n")

	if !strings.Contains(out, "== Courtyard ==") {
		t.Fatalf("expected transition to courtyard, got %q", out)
	}
	if gold := eng.Store.State().Vars["gold"]; gold != 5 {
		t.Fatalf("expected bribe to cost 5 gold, got %v", gold)
	}
}

func TestSessionIdleChoicePrintsResponse(t *testing.T) {
	eng := newSessionEngine()
	out := playSession(t, eng, "2\nquit\n")

	if !strings.Contains(out, "The guard ignores you.") {
		t.Fatalf("expected idle response, got %q", out)
	}
	if key := eng.Director.CurrentKey(); key != "start" {
		t.Fatalf("expected to stay at start, got %q", key)
	}
}

func TestSessionMenuSkipsGuardedChoices(t *testing.T) {
	eng := game.New(state.Game{Vars: map[string]any{"gold": 0}})
	eng.Scenes.Register(map[string]content.Entry[*scene.Scene]{
		"start": content.Value(&scene.Scene{
			Title: "Gate",
			Choices: []scene.Choice{
				{Label: "Bribe", Guard: func(*state.Game) bool { return false }, Target: "start"},
				{Label: "Wait", Response: "You wait."},
			},
		}),
	})

	out := playSession(t, eng, "1\nquit\n")

	if strings.Contains(out, "Bribe") {
		t.Fatalf("guarded choice leaked into the menu: %q", out)
	}
	// Menu slot 1 is Wait once the guarded choice is hidden.
	if !strings.Contains(out, "You wait.") {
		t.Fatalf("expected menu index to map to first available choice, got %q", out)
	}
}

func TestSessionRejectsBadInput(t *testing.T) {
	out := playSession(t, newSessionEngine(), "9\nfly\nquit\n")

	if !strings.Contains(out, "No such choice.") {
		t.Fatalf("expected out-of-range message, got %q", out)
	}
	if !strings.Contains(out, "Enter a choice number") {
		t.Fatalf("expected help message, got %q", out)
	}
}

func TestSessionSaveAndLoadRoundTrip(t *testing.T) {
	eng := newSessionEngine()
	var out bytes.Buffer
	session := &Session{
		Engine: eng,
		Saves:  newSessionStore(),
		Slot:   "auto",
		In:     strings.NewReader("save\n1\nload\nquit\n"),
		Out:    &out,
	}
	if err := session.Play(context.Background(), "start"); err != nil {
		t.Fatalf("play: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, `Saved to slot "auto".`) {
		t.Fatalf("expected save confirmation, got %q", text)
	}
	if !strings.Contains(text, `Loaded slot "auto".`) {
		t.Fatalf("expected load confirmation, got %q", text)
	}
	if key := eng.Director.CurrentKey(); key != "start" {
		t.Fatalf("expected load to rewind to start, got %q", key)
	}
	if gold := eng.Store.State().Vars["gold"]; gold != 10 {
		t.Fatalf("expected load to restore 10 gold, got %v", gold)
	}
}

func TestSessionAutosavesOnQuit(t *testing.T) {
	eng := newSessionEngine()
	store := newSessionStore()
	session := &Session{
		Engine: eng,
		Saves:  store,
		Slot:   "auto",
		In:     strings.NewReader("1\nquit\n"),
		Out:    &bytes.Buffer{},
	}
	if err := session.Play(context.Background(), "start"); err != nil {
		t.Fatalf("play: %v", err)
	}

	rec, ok := store.records["auto"]
	if !ok {
		t.Fatal("expected autosave record")
	}
	if rec.SceneKey != "courtyard" {
		t.Fatalf("expected autosave at courtyard, got %q", rec.SceneKey)
	}
}

func TestSessionLoadWithoutSaveExplains(t *testing.T) {
	out := playSession(t, newSessionEngine(), "load\nquit\n")

	if !strings.Contains(out, `Nothing saved in slot "auto" yet.`) {
		t.Fatalf("expected missing-save message, got %q", out)
	}
}

func TestLoadStoriesRegistersBothFormats(t *testing.T) {
	dir := t.TempDir()
	lua := `
local story = Story.new("lua_story")
story:scene("lua_scene", { title = "From Lua" })
return story
`
	yamlBody := `
scenes:
  - key: yaml_scene
    title: From YAML
`
	if err := os.WriteFile(filepath.Join(dir, "a.lua"), []byte(lua), 0o644); err != nil {
		t.Fatalf("write lua: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	eng := game.New(state.Game{})
	if err := LoadStories(eng, dir); err != nil {
		t.Fatalf("load stories: %v", err)
	}
	if !eng.Scenes.Has("lua_scene") || !eng.Scenes.Has("yaml_scene") {
		t.Fatal("expected scenes from both formats")
	}
}

func TestLoadStoriesEmptyDirFails(t *testing.T) {
	eng := game.New(state.Game{})
	if err := LoadStories(eng, t.TempDir()); err == nil {
		t.Fatal("expected error for empty story dir")
	}
}

func TestRunFailsOnMissingStartScene(t *testing.T) {
	eng := newSessionEngine()
	session := &Session{
		Engine: eng,
		Saves:  newSessionStore(),
		Slot:   "auto",
		In:     strings.NewReader(""),
		Out:    &bytes.Buffer{},
	}
	if err := session.Play(context.Background(), "absent"); err == nil {
		t.Fatal("expected error for missing start scene")
	}
}
