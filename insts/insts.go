// Package insts provides RISC-V instruction definitions and decoding.
//
// This package implements decoding of RV32I/RV64I machine code, plus the M
// extension and the handful of privileged instructions the core model needs,
// into structured instruction representations. It supports:
//   - Integer register-immediate and register-register operations
//   - LUI, AUIPC, JAL, JALR and conditional branches
//   - Loads and stores of 1, 2, 4 and 8 bytes
//   - MUL/DIV/REM and their word forms
//   - CSR access, ECALL, EBREAK, MRET, FENCE, SFENCE.VMA
//   - The simulator halt instruction (0x0000006b)
//
// Usage:
//
//	decoder := insts.NewDecoder(64)
//	inst := decoder.Decode(0x02a00513) // addi a0, zero, 42
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts
