package swift

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
	"gotest.tools/v3/assert"

	"github.com/tudinfse/elzar/ir"
)

// update reports whether -update was passed. gotest.tools' init registers a
// global "update" flag; registering a second one here would panic, so reuse
// it when present and only declare our own when absent.
var update = func() func() bool {
	if f := flag.Lookup("update"); f != nil {
		return func() bool { return f.Value.(flag.Getter).Get().(bool) }
	}
	b := flag.Bool("update", false, "rewrite golden transform outputs")
	return func() bool { return *b }
}()

// TestGolden hardens every archive under testdata and compares the printed
// module byte for byte. Archives named simplified* run under the
// two-lane profile. Run with -update to regenerate the outputs.
func TestGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	assert.NilError(t, err)
	assert.Assert(t, len(files) > 0, "no golden archives")

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txtar")
		t.Run(name, func(t *testing.T) {
			ar, err := txtar.ParseFile(file)
			assert.NilError(t, err)
			var input, want string
			for _, f := range ar.Files {
				switch f.Name {
				case "input":
					input = string(f.Data)
				case "output":
					want = string(f.Data)
				}
			}
			assert.Assert(t, input != "", "archive lacks an input section")

			cfg := DefaultConfig()
			if strings.HasPrefix(name, "simplified") {
				cfg.Profile = ProfileSimplified
			}
			m, err := ir.Parse(name, input)
			assert.NilError(t, err)
			assert.NilError(t, Transform(m, cfg))
			got := m.String()

			if update() {
				for i := range ar.Files {
					if ar.Files[i].Name == "output" {
						ar.Files[i].Data = []byte(got)
					}
				}
				assert.NilError(t, os.WriteFile(file, txtar.Format(ar), 0o644))
				return
			}
			assert.Equal(t, got, want)
		})
	}
}
