// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"testing"

	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			specs: nil,
			want:  nil,
		},
		{
			name:  "single",
			specs: []string{"FOO=bar"},
			want:  map[string]string{"FOO": "bar"},
		},
		{
			name:  "multiple",
			specs: []string{"FOO=bar", "BAZ=qux"},
			want:  map[string]string{"FOO": "bar", "BAZ": "qux"},
		},
		{
			name:  "empty value",
			specs: []string{"FOO="},
			want:  map[string]string{"FOO": ""},
		},
		{
			name:  "value contains equals",
			specs: []string{"FOO=a=b"},
			want:  map[string]string{"FOO": "a=b"},
		},
		{
			name:    "missing equals",
			specs:   []string{"FOO"},
			wantErr: true,
		},
		{
			name:    "empty key",
			specs:   []string{"=bar"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEnv(tt.specs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCmd_ExpectNotFound(t *testing.T) {
	ctx := ctxlog.New(context.Background(), ctxlog.DefaultLogger)

	err := RunCmd.Run(ctx, []string{"run", "--expect-not-found", "--", "definitely-not-a-real-command-procpool"})
	require.NoError(t, err, "a missing executable is the expected outcome here")
}
