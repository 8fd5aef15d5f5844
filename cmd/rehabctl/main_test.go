package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/AnshRaj112/rehab-backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPassword(t *testing.T) {
	t.Run("from env", func(t *testing.T) {
		t.Setenv(staffPasswordEnv, "from-the-env")
		got, err := readPassword(strings.NewReader("ignored\n"))
		require.NoError(t, err)
		assert.Equal(t, "from-the-env", got)
	})

	t.Run("first stdin line", func(t *testing.T) {
		t.Setenv(staffPasswordEnv, "")
		got, err := readPassword(strings.NewReader("piped-secret\r\nsecond line\n"))
		require.NoError(t, err)
		assert.Equal(t, "piped-secret", got)
	})

	t.Run("no trailing newline", func(t *testing.T) {
		t.Setenv(staffPasswordEnv, "")
		got, err := readPassword(strings.NewReader("piped-secret"))
		require.NoError(t, err)
		assert.Equal(t, "piped-secret", got)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv(staffPasswordEnv, "")
		_, err := readPassword(strings.NewReader(""))
		assert.ErrorContains(t, err, staffPasswordEnv)
	})
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	cmd := newKeygenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		k, v, ok := strings.Cut(line, "=")
		require.True(t, ok, line)
		values[k] = v
	}
	require.Len(t, values, 2)

	km, err := utils.ParseKeyMaterial(values["ENCRYPTION_KEY"], values["BLIND_INDEX_KEY"])
	require.NoError(t, err)
	assert.NoError(t, km.Validate())
}

func TestStaffCreateRequiresFlags(t *testing.T) {
	cmd := newStaffCreateCmd()
	cmd.SetArgs([]string{"--name", "Sam"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.Execute(), "staff-number")
}
