package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// systemTransferIndex is the System Program instruction discriminant for Transfer.
const systemTransferIndex = 2

// computeUnitPriceIndex is the ComputeBudget instruction discriminant for
// SetComputeUnitPrice.
const computeUnitPriceIndex = 3

// Transaction is a signed wire-format transaction ready for sendTransaction.
type Transaction struct {
	Wire      []byte
	Signature string // base58 of the fee payer signature
}

// BuildTransfer assembles and signs a System Program lamport transfer anchored
// to recentBlockhash. A non-zero priorityFee (micro-lamports per compute unit)
// prepends a ComputeBudget SetComputeUnitPrice instruction.
func BuildTransfer(w *Wallet, recipient string, lamports uint64, recentBlockhash string, priorityFee uint64) (*Transaction, error) {
	to := base58.Decode(recipient)
	if len(to) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("recipient %q is not a valid address", recipient)
	}
	blockhash := base58.Decode(recentBlockhash)
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash %q is not 32 bytes", recentBlockhash)
	}

	// Static account keys: fee payer (writable signer), recipient (writable),
	// then read-only programs.
	keys := [][]byte{w.PublicKey(), to, base58.Decode(SystemProgramID)}
	readonlyUnsigned := byte(1)
	var instructions []instruction

	if priorityFee > 0 {
		keys = append(keys, base58.Decode(ComputeBudgetProgramID))
		readonlyUnsigned = 2
		data := make([]byte, 9)
		data[0] = computeUnitPriceIndex
		binary.LittleEndian.PutUint64(data[1:], priorityFee)
		instructions = append(instructions, instruction{
			programIndex: byte(len(keys) - 1),
			data:         data,
		})
	}

	transfer := make([]byte, 12)
	binary.LittleEndian.PutUint32(transfer[0:], systemTransferIndex)
	binary.LittleEndian.PutUint64(transfer[4:], lamports)
	instructions = append(instructions, instruction{
		programIndex: 2,
		accounts:     []byte{0, 1},
		data:         transfer,
	})

	msg := encodeMessage(1, 0, readonlyUnsigned, keys, blockhash, instructions)
	sig := w.Sign(msg)

	// Wire format: compact array of signatures followed by the message.
	wire := appendCompactU16(nil, 1)
	wire = append(wire, sig...)
	wire = append(wire, msg...)

	return &Transaction{Wire: wire, Signature: base58.Encode(sig)}, nil
}

type instruction struct {
	programIndex byte
	accounts     []byte
	data         []byte
}

func encodeMessage(numSigners, readonlySigned, readonlyUnsigned byte, keys [][]byte, blockhash []byte, instrs []instruction) []byte {
	msg := []byte{numSigners, readonlySigned, readonlyUnsigned}
	msg = appendCompactU16(msg, uint16(len(keys)))
	for _, k := range keys {
		msg = append(msg, k...)
	}
	msg = append(msg, blockhash...)
	msg = appendCompactU16(msg, uint16(len(instrs)))
	for _, in := range instrs {
		msg = append(msg, in.programIndex)
		msg = appendCompactU16(msg, uint16(len(in.accounts)))
		msg = append(msg, in.accounts...)
		msg = appendCompactU16(msg, uint16(len(in.data)))
		msg = append(msg, in.data...)
	}
	return msg
}

// appendCompactU16 appends v in the chain's compact-u16 (shortvec) encoding.
func appendCompactU16(b []byte, v uint16) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
