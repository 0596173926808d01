package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesCompile(t *testing.T) {
	rs, err := CompileRules(DefaultRules())
	require.NoError(t, err)
	assert.NotEmpty(t, rs.sqli)
	assert.NotEmpty(t, rs.xss)
}

func TestCompileRules_RejectsBadInput(t *testing.T) {
	_, err := CompileRules([]Rule{{Name: "broken", Category: CategorySQLi, Pattern: `(`}})
	assert.Error(t, err)

	_, err = CompileRules([]Rule{{Name: "odd", Category: "malware", Pattern: `x`}})
	assert.Error(t, err)
}

func TestRuleSetMatch_SQLBeforeXSS(t *testing.T) {
	rs, err := CompileRules([]Rule{
		{Name: "x", Category: CategoryXSS, Pattern: `(?i)<script`},
		{Name: "s", Category: CategorySQLi, Pattern: `(?i)union`},
	})
	require.NoError(t, err)

	rule := rs.Match("union <script>")
	require.NotNil(t, rule)
	assert.Equal(t, "s", rule.Name, "table order never outranks category order")

	assert.Nil(t, rs.Match("plain text"))
}

func TestLoadRules_EmptyPathUsesDefaults(t *testing.T) {
	rs, err := LoadRules("")
	require.NoError(t, err)
	assert.NotNil(t, rs.Match("1 UNION SELECT secret"))
}

func TestLoadRules_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	doc := `rules:
  - name: custom-marker
    category: sqli
    pattern: "(?i)drop\\s+table"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rs, err := LoadRules(path)
	require.NoError(t, err)

	rule := rs.Match("DROP TABLE users")
	require.NotNil(t, rule)
	assert.Equal(t, "custom-marker", rule.Name)
	assert.Nil(t, rs.Match("1 UNION SELECT secret"), "a rule file replaces the built-ins")
}

func TestLoadRules_BadFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o600))
	_, err = LoadRules(empty)
	assert.Error(t, err)
}
