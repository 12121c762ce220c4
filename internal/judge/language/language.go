// Package language maps each supported language to its compile and run recipe.
package language

import (
	"fmt"
	"os"
	"sort"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/judge/sandbox"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"
)

const (
	PartitionNative = "native"
	PartitionJVM    = "jvm"
	PartitionScript = "script"
)

type Recipe struct {
	Name             string   `toml:"name"`
	SourceFile       string   `toml:"source_file"`
	Compile          []string `toml:"compile"`
	CompileTimeoutMs int      `toml:"compile_timeout_ms"`
	Run              []string `toml:"run"`
	TimeMultiplier   float64  `toml:"time_multiplier"`
	Partition        string   `toml:"partition"`
}

func (r Recipe) Compiled() bool {
	return len(r.Compile) > 0
}

var defaultRecipes = map[model.Language]Recipe{
	model.LanguageCpp: {
		Name:             "C++17 (g++)",
		SourceFile:       "main.cpp",
		Compile:          []string{"g++", "-std=c++17", "-O2", "-pipe", "-o", "main", "main.cpp"},
		CompileTimeoutMs: 15000,
		Run:              []string{"./main"},
		TimeMultiplier:   1,
		Partition:        PartitionNative,
	},
	model.LanguageJava: {
		Name:             "Java 17",
		SourceFile:       "Main.java",
		Compile:          []string{"javac", "-encoding", "UTF-8", "Main.java"},
		CompileTimeoutMs: 20000,
		Run:              []string{"java", "-XX:+UseSerialGC", "-Xss64m", "-cp", ".", "Main"},
		TimeMultiplier:   2,
		Partition:        PartitionJVM,
	},
	model.LanguagePython: {
		Name:           "Python 3",
		SourceFile:     "main.py",
		Run:            []string{"python3", "main.py"},
		TimeMultiplier: 1,
		Partition:      PartitionScript,
	},
	model.LanguageJavaScript: {
		Name:           "JavaScript (Node.js)",
		SourceFile:     "main.js",
		Run:            []string{"node", "main.js"},
		TimeMultiplier: 1,
		Partition:      PartitionScript,
	},
}

type Registry struct {
	recipes map[model.Language]Recipe
}

func Default() *Registry {
	r := &Registry{recipes: make(map[model.Language]Recipe, len(defaultRecipes))}
	for lang, recipe := range defaultRecipes {
		r.recipes[lang] = recipe
	}
	return r
}

// LoadFile starts from the default recipes and applies the tables found in a
// TOML file keyed by language tag, e.g. [cpp] compile = [...].
func LoadFile(path string) (*Registry, error) {
	r := Default()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language recipes: %w", err)
	}
	if err := r.Override(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) Override(data []byte) error {
	var tables map[string]Recipe
	if err := toml.Unmarshal(data, &tables); err != nil {
		return fmt.Errorf("parse language recipes: %w", err)
	}
	for tag, over := range tables {
		lang, err := model.ParseLanguage(tag)
		if err != nil {
			return err
		}
		cur := r.recipes[lang]
		if over.Name != "" {
			cur.Name = over.Name
		}
		if over.SourceFile != "" {
			cur.SourceFile = over.SourceFile
		}
		if over.Compile != nil {
			cur.Compile = over.Compile
		}
		if over.CompileTimeoutMs > 0 {
			cur.CompileTimeoutMs = over.CompileTimeoutMs
		}
		if len(over.Run) > 0 {
			cur.Run = over.Run
		}
		if over.TimeMultiplier > 0 {
			cur.TimeMultiplier = over.TimeMultiplier
		}
		if over.Partition != "" {
			cur.Partition = over.Partition
		}
		r.recipes[lang] = cur
	}
	return nil
}

func (r *Registry) Recipe(lang model.Language) (Recipe, error) {
	recipe, ok := r.recipes[lang]
	if !ok {
		return Recipe{}, fmt.Errorf("%q: %w", lang, common.ErrUnsupportedLanguage)
	}
	return recipe, nil
}

// Unit turns source code into something a sandbox can compile and run.
func (r *Registry) Unit(lang model.Language, source string) (sandbox.Unit, error) {
	recipe, err := r.Recipe(lang)
	if err != nil {
		return sandbox.Unit{}, err
	}
	unit := sandbox.Unit{
		SourceName:     recipe.SourceFile,
		Source:         source,
		Run:            sandbox.Step{Args: append([]string(nil), recipe.Run...)},
		TimeMultiplier: recipe.TimeMultiplier,
	}
	if recipe.Compiled() {
		unit.Compile = &sandbox.Step{
			Args:    append([]string(nil), recipe.Compile...),
			Timeout: time.Duration(recipe.CompileTimeoutMs) * time.Millisecond,
		}
	}
	return unit, nil
}

// Partition names the worker pool a language is judged in.
func (r *Registry) Partition(lang model.Language) string {
	if recipe, ok := r.recipes[lang]; ok && recipe.Partition != "" {
		return recipe.Partition
	}
	return PartitionNative
}

func (r *Registry) Partitions() mapset.Set[string] {
	set := mapset.NewSet[string]()
	for lang := range r.recipes {
		set.Add(r.Partition(lang))
	}
	return set
}

// Languages returns the configured languages in a stable order.
func (r *Registry) Languages() []model.Language {
	out := make([]model.Language, 0, len(r.recipes))
	for lang := range r.recipes {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
