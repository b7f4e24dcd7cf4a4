package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	original := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = original })

	for _, v := range []string{"1.4.0", "v0.2.0-rc.1", "dev", ""} {
		rootCmd.Version = v

		var out bytes.Buffer
		cmd := newVersionCmd()
		cmd.SetOut(&out)
		cmd.Run(cmd, nil)

		assert.Equal(t, "signflow version "+v+"\n", out.String())
	}
}

func TestVersionCmd_Help(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "built with")
	assert.Contains(t, out.String(), `"dev"`)
}
