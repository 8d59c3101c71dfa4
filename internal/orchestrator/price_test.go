package orchestrator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TemirB/musicnft/internal/domain"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "5.50", want: 550},
		{in: "5.5", want: 550},
		{in: "5.500", want: 550},
		{in: " 10 ", want: 1000},
		{in: "0.01", want: 1},
		{in: "5.555", wantErr: true},
		{in: "0", wantErr: true},
		{in: "0.00", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
		{in: "1,5", wantErr: true},
		{in: "5.5e0", wantErr: true},
		{in: "1e2", wantErr: true},
		{in: "1E2", wantErr: true},
		{in: "+5", wantErr: true},
		{in: ".5", wantErr: true},
		{in: "5.", wantErr: true},
		{in: "0x10", wantErr: true},
		{in: "1 000", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePrice(tc.in, 2)
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Int64())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	require.Equal(t, "5.50", FormatUnits(big.NewInt(550), 2))
	require.Equal(t, "0.01", FormatUnits(big.NewInt(1), 2))
	require.Equal(t, "1000000.00", FormatUnits(big.NewInt(100000000), 2))
	require.Equal(t, "0.00", FormatUnits(nil, 2))
	require.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
}
