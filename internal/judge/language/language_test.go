package language

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRecipes(t *testing.T) {
	r := Default()

	for _, lang := range model.Languages {
		recipe, err := r.Recipe(lang)
		require.NoError(t, err, lang)
		assert.NotEmpty(t, recipe.Run, lang)
		assert.NotEmpty(t, recipe.SourceFile, lang)
	}

	cpp, _ := r.Recipe(model.LanguageCpp)
	assert.True(t, cpp.Compiled())
	py, _ := r.Recipe(model.LanguagePython)
	assert.False(t, py.Compiled())
}

func TestUnit(t *testing.T) {
	r := Default()

	unit, err := r.Unit(model.LanguageCpp, "int main(){}")
	require.NoError(t, err)
	assert.Equal(t, "main.cpp", unit.SourceName)
	require.NotNil(t, unit.Compile)
	assert.Equal(t, 15*time.Second, unit.Compile.Timeout)
	assert.Equal(t, []string{"./main"}, unit.Run.Args)

	unit, err = r.Unit(model.LanguageJavaScript, "console.log(1)")
	require.NoError(t, err)
	assert.Nil(t, unit.Compile)
	assert.Equal(t, []string{"node", "main.js"}, unit.Run.Args)

	_, err = r.Unit(model.Language("cobol"), "")
	assert.True(t, errors.Is(err, common.ErrUnsupportedLanguage))
}

func TestUnitDoesNotAliasRecipe(t *testing.T) {
	r := Default()
	unit, err := r.Unit(model.LanguagePython, "")
	require.NoError(t, err)
	unit.Run.Args[0] = "mutated"

	again, _ := r.Unit(model.LanguagePython, "")
	assert.Equal(t, "python3", again.Run.Args[0])
}

func TestPartitions(t *testing.T) {
	r := Default()
	assert.Equal(t, PartitionJVM, r.Partition(model.LanguageJava))
	assert.Equal(t, PartitionScript, r.Partition(model.LanguagePython))
	assert.True(t, r.Partitions().Equal(mapset.NewSet(PartitionNative, PartitionJVM, PartitionScript)))
}

func TestOverrideFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[cpp]
compile = ["clang++", "-std=c++20", "-O2", "-o", "main", "main.cpp"]
compile_timeout_ms = 30000

[python]
run = ["pypy3", "main.py"]
partition = "native"
`), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)

	cpp, _ := r.Recipe(model.LanguageCpp)
	assert.Equal(t, "clang++", cpp.Compile[0])
	assert.Equal(t, 30000, cpp.CompileTimeoutMs)
	assert.Equal(t, []string{"./main"}, cpp.Run)

	py, _ := r.Recipe(model.LanguagePython)
	assert.Equal(t, []string{"pypy3", "main.py"}, py.Run)
	assert.Equal(t, PartitionNative, r.Partition(model.LanguagePython))
}

func TestOverrideRejectsUnknownLanguage(t *testing.T) {
	err := Default().Override([]byte("[fortran]\nrun = [\"./a.out\"]\n"))
	assert.True(t, errors.Is(err, common.ErrUnsupportedLanguage))
}
