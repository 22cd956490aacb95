package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireHousehold(t *testing.T) {
	tests := []struct {
		env     string
		want    string
		wantErr bool
	}{
		{"", "", true},
		{"   ", "", true},
		{"h-env", "h-env", false},
		{" h1 ", "h1", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("BURNDOWN_HOUSEHOLD", tt.env)

			id, err := requireHousehold()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestTimeoutDefault(t *testing.T) {
	assert.Equal(t, "10m0s", viper.GetDuration("timeout").String())
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"budget", "sync", "connections", "migrate"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, syncCmd.Flags().Lookup("connection"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"used": 3}))
	assert.JSONEq(t, `{"used":3}`, buf.String())
}
