package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	instrs := []Instruction{
		{Op: OpConstant, Operand: 0, Offset: 0},
		{Op: OpConstant, Operand: 1, Offset: 3},
		{Op: OpAdd, Offset: 6},
		{Op: OpReturn, Offset: 7},
	}
	code := Encode(instrs)
	decoded := Decode(code)
	require.Len(t, decoded, 4)
	require.Equal(t, OpConstant, decoded[0].Op)
	require.Equal(t, 0, decoded[0].Operand)
	require.Equal(t, 1, decoded[1].Operand)
	require.Equal(t, OpAdd, decoded[2].Op)
	require.Equal(t, OpReturn, decoded[3].Op)
	require.Equal(t, 7, decoded[3].Offset)
}

func TestDecodeOffsetsSequential(t *testing.T) {
	code := Encode([]Instruction{
		{Op: OpTrue},
		{Op: OpJump, Operand: 5},
		{Op: OpHalt},
	})
	decoded := Decode(code)
	require.Equal(t, 0, decoded[0].Offset)
	require.Equal(t, 1, decoded[1].Offset)
	require.Equal(t, 4, decoded[2].Offset)
}

func TestNegativeJumpOperand(t *testing.T) {
	code := Encode([]Instruction{{Op: OpLoop, Operand: -10}})
	decoded := Decode(code)
	require.Equal(t, -10, decoded[0].Operand)
}
