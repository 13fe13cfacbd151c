package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/schema"
	"github.com/koustreak/sqlrefine/internal/version"
)

const dump = "CREATE TABLE `users` (\n" +
	"  `id` int NOT NULL,\n" +
	"  `role` enum('admin','user') NOT NULL\n" +
	");\n" +
	"INSERT INTO `users` VALUES\n" +
	"(1,''),\n" +
	"(2,'root');\n"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.sql")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))
	return path
}

func TestRefineCmd(t *testing.T) {
	out := t.TempDir()
	stdout, stderr, err := execute(t, "refine", writeDump(t), "--output", out)
	require.NoError(t, err, stderr)

	path := filepath.Join(out, "users.sql")
	assert.Equal(t, path+"\n", stdout)
	assert.Contains(t, stderr, "Starting: Step 1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "(1, 'admin'),\n(2, 'admin');\n")
}

func TestRefineCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind errs.ErrKind
	}{
		{"no input", []string{"refine"}, errs.ErrKindInvalidInput},
		{"file and object", []string{"refine", "a.sql", "--object", "b.sql"}, errs.ErrKindInvalidInput},
		{"object without store", []string{"refine", "--object", "b.sql"}, errs.ErrKindInvalidInput},
		{"missing file", []string{"refine", filepath.Join(t.TempDir(), "absent.sql"), "-o", t.TempDir()}, errs.ErrKindNotFound},
		{"publish without store", []string{"refine", writeDump(t), "-o", t.TempDir(), "--publish"}, errs.ErrKindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestInspectCmd(t *testing.T) {
	stdout, _, err := execute(t, "inspect", writeDump(t))
	require.NoError(t, err)

	var meta schema.Metadata
	require.NoError(t, json.Unmarshal([]byte(stdout), &meta))
	require.Len(t, meta["users"], 2)
	assert.Equal(t, "role", meta["users"][1].Name)
	assert.Equal(t, []string{"admin", "user"}, meta["users"][1].EnumValues)
}

func TestImportCmd_InvalidDSN(t *testing.T) {
	_, _, err := execute(t, "import", writeDump(t), "--dsn", "nodatabase@tcp(db)/")
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = execute(t, "import", writeDump(t))
	assert.True(t, errs.IsInvalidInput(err), "no dsn configured")
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "sqlrefine "+version.Version))

	stdout, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nope: 1\n"), 0o600))

	_, _, err := execute(t, "--config", path, "version")
	assert.True(t, errs.IsInvalidInput(err))
}
