package bot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const cleanBot = `
local function helper(board)
    local n = #board
    return n
end

function new(my_color, opp_color)
    local p = {}
    function p.select_move(self, board)
        local n = helper(board)
        return math.random(n), math.random(n)
    end
    return p
end
`

func TestVetAcceptsCleanSource(t *testing.T) {
	require.Nil(t, Vet(cleanBot, "clean.lua"))
}

func TestVetAcceptsAllowedRequires(t *testing.T) {
	src := `
local m = require("math")
local s = require("string")
local t = require("table")
`
	require.Nil(t, Vet(src, "allowed.lua"))
}

func TestVetSyntaxError(t *testing.T) {
	violations := Vet("function broken(", "broken.lua")
	require.Len(t, violations, 1, "A parse failure should yield exactly one violation")
	require.Equal(t, ViolationSyntaxError, violations[0].Kind)
	require.NotZero(t, violations[0].Line)
}

func TestVetDangerousImport(t *testing.T) {
	violations := Vet(`local o = require("os")`, "evil.lua")
	require.Len(t, violations, 1)
	require.Equal(t, ViolationDangerousImport, violations[0].Kind)
	require.Equal(t, 1, violations[0].Line)
	require.Contains(t, violations[0].Description, "os")
	require.Contains(t, violations[0].Snippet, `require("os")`)
}

func TestVetDisallowedImport(t *testing.T) {
	violations := Vet(`local s = require("socket")`, "net.lua")
	require.Len(t, violations, 1)
	require.Equal(t, ViolationDisallowedImport, violations[0].Kind)
	require.Contains(t, violations[0].Description, "math, string, table",
		"The rejection should name the allowed modules")
}

func TestVetSubmoduleRequire(t *testing.T) {
	violations := Vet(`local p = require("os.time")`, "sub.lua")
	require.Len(t, violations, 1)
	require.Equal(t, ViolationDangerousImport, violations[0].Kind,
		"The module root before the first dot decides the classification")
}

func TestVetNonLiteralRequire(t *testing.T) {
	violations := Vet(`local m = require(pick())`, "dyn.lua")
	require.Len(t, violations, 1)
	require.Equal(t, ViolationDangerousFunction, violations[0].Kind)
}

func TestVetDangerousFunctions(t *testing.T) {
	for _, src := range []string{
		`load("return 1")()`,
		`loadstring("return 1")()`,
		`dofile("x.lua")`,
		`setmetatable({}, {})`,
		`local g = getfenv(0)`,
		`collectgarbage("collect")`,
	} {
		violations := Vet(src, "calls.lua")
		require.Len(t, violations, 1, "Source %q should be flagged", src)
		require.Equal(t, ViolationDangerousFunction, violations[0].Kind)
	}
}

func TestVetDangerousAttributes(t *testing.T) {
	t.Run("module member access", func(t *testing.T) {
		violations := Vet(`local now = os.time()`, "attr.lua")
		require.Len(t, violations, 1)
		require.Equal(t, ViolationDangerousAttribute, violations[0].Kind)
		require.Contains(t, violations[0].Description, "os")
	})

	t.Run("global environment", func(t *testing.T) {
		violations := Vet(`local env = _G`, "genv.lua")
		require.Len(t, violations, 1)
		require.Equal(t, ViolationDangerousAttribute, violations[0].Kind)

		violations = Vet(`_G.print = nil`, "genv2.lua")
		require.NotEmpty(t, violations)
	})
}

// TestVetCollectsEverything mirrors the contract that rejection reports the
// complete violation list, not only the first finding.
func TestVetCollectsEverything(t *testing.T) {
	src := `
local o = require("os")
local s = require("socket")
loadstring("return 1")()
local t = io.open("/etc/passwd")
`
	violations := Vet(src, "kitchen_sink.lua")
	require.Len(t, violations, 4)

	kinds := map[ViolationKind]int{}
	for _, v := range violations {
		kinds[v.Kind]++
	}
	require.Equal(t, 1, kinds[ViolationDangerousImport])
	require.Equal(t, 1, kinds[ViolationDisallowedImport])
	require.Equal(t, 1, kinds[ViolationDangerousFunction])
	require.Equal(t, 1, kinds[ViolationDangerousAttribute])
}

// The shipped builtin bots must pass the same vetting as uploads.
func TestVetBuiltinBots(t *testing.T) {
	for _, name := range []string{"builtin/random.lua", "builtin/greedy.lua"} {
		source, err := builtinFS.ReadFile(name)
		require.NoError(t, err)
		require.Nil(t, Vet(string(source), name), "%s should pass its own vetting", name)
	}
}
