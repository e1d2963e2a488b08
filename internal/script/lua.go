package script

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/fabula/internal/content"
	"github.com/louisbranch/fabula/internal/scene"
)

const storyTypeName = "story"

// Story is a set of decoded scenes ready to register with the resolver.
type Story struct {
	Name   string
	Scenes map[string]*scene.Scene
	order  []string
}

// NewStory creates an empty named story.
func NewStory(name string) *Story {
	return &Story{Name: name, Scenes: map[string]*scene.Scene{}}
}

// Keys returns the scene keys in declaration order.
func (s *Story) Keys() []string {
	return append([]string(nil), s.order...)
}

// Entries renders the story as resolver registrations.
func (s *Story) Entries() map[string]content.Entry[*scene.Scene] {
	entries := make(map[string]content.Entry[*scene.Scene], len(s.Scenes))
	for key, sc := range s.Scenes {
		entries[key] = content.Value(sc)
	}
	return entries
}

// Add appends a scene under key, rejecting duplicates.
func (s *Story) Add(key string, sc *scene.Scene) error {
	if _, exists := s.Scenes[key]; exists {
		return fmt.Errorf("%w: duplicate scene %q", ErrBadScene, key)
	}
	s.Scenes[key] = sc
	s.order = append(s.order, key)
	return nil
}

// LoadFile runs a Lua story script and returns the story it builds.
//
// A script constructs a story and returns it:
//
//	local story = Story.new("intro")
//	story:scene("start", { title = "Start", choices = { ... } })
//	return story
func LoadFile(path string) (*Story, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerStoryType(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load story %s: %w", path, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run story %s: %w", path, err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("story script %s must return a Story", path)
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	story, ok := ud.(*Story)
	if !ok || story == nil {
		return nil, fmt.Errorf("story script %s returned an invalid Story", path)
	}
	if strings.TrimSpace(story.Name) == "" {
		story.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return story, nil
}

// LoadDir loads every .lua story under dir, sorted by filename.
func LoadDir(dir string) ([]*Story, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("scan story dir %s: %w", dir, err)
	}
	sort.Strings(paths)

	var stories []*Story
	for _, path := range paths {
		story, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, nil
}

func registerStoryType(state *lua.State) {
	lua.NewMetaTable(state, storyTypeName)
	state.NewTable()
	lua.SetFunctions(state, storyMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, storyConstructor, 0)
	state.SetGlobal("Story")
}

var storyConstructor = []lua.RegistryFunction{
	{Name: "new", Function: storyNew},
}

var storyMethods = []lua.RegistryFunction{
	{Name: "scene", Function: storyScene},
}

func storyNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	story := NewStory(name)
	state.PushUserData(story)
	lua.SetMetaTableNamed(state, storyTypeName)
	return 1
}

func storyScene(state *lua.State) int {
	story := checkStory(state)
	key := lua.CheckString(state, 2)
	lua.CheckType(state, 3, lua.TypeTable)
	def := tableToMap(state, 3)

	sc, err := DecodeScene(key, def)
	if err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	if err := story.Add(key, sc); err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	return 0
}

func checkStory(state *lua.State) *Story {
	ud := lua.CheckUserData(state, 1, storyTypeName)
	if story, ok := ud.(*Story); ok && story != nil {
		return story
	}
	lua.ArgumentError(state, 1, "story expected")
	return nil
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return luaNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo keeps Lua's one ambiguity explicit: a table with contiguous
// 1..n integer keys decodes as a list, anything else as a map.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}

	return tableToMap(state, index)
}

func luaNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
