package identity

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

const lower = "0x000aa7d3a6a2556496f363b59e56d9aa1881548f"

var checksummed = ledger.Identity(common.HexToAddress(lower).Hex())

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    ledger.Identity
		wantErr bool
	}{
		{in: "OWNER", want: "OWNER"},
		{in: "  alice ", want: "alice"},
		{in: lower, want: checksummed},
		{in: "0X" + strings.ToUpper(lower[2:]), want: checksummed},
		{in: "0x1234", wantErr: true},
		{in: "", wantErr: true},
		{in: "tab\there", wantErr: true},
		{in: strings.Repeat("a", MaxLen+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIsAddress(t *testing.T) {
	require.True(t, IsAddress(checksummed))
	require.NotEqual(t, string(checksummed), lower)
	require.False(t, IsAddress(lower))
	require.False(t, IsAddress("OWNER"))
}
