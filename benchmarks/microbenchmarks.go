package benchmarks

import "github.com/sarchlab/coresim/insts"

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// stresses a single part of the core.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		mixedOperations(),
		matrixMultiply2x2(),
		loopSimulation(),
		strideWalk(),
	}
}

// GetCoreBenchmarks returns a quick subset: a loop, a matrix multiply and
// branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		matrixMultiply2x2(),
		branchTaken(),
	}
}

// Independent adds rotating over five registers.
func arithmeticSequential() Benchmark {
	regs := []uint8{insts.A0, insts.A1, insts.A2, insts.A3, insts.A4}

	program := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		r := regs[i%len(regs)]
		program = append(program, insts.ADDI(r, r, 1))
	}

	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADDIs over 5 registers - measures ALU throughput",
		Program:      append(program, insts.TRAP()),
		ExpectedExit: 4,
	}
}

func dependencyChain() Benchmark {
	program := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		program = append(program, insts.ADDI(insts.A0, insts.A0, 1))
	}

	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs on a0 - measures forwarding latency",
		Program:      append(program, insts.TRAP()),
		ExpectedExit: 20,
	}
}

func memorySequential() Benchmark {
	program := []uint32{
		insts.AUIPC(insts.T0, dataOffset>>12),
		insts.ADDI(insts.A0, insts.Zero, 42),
	}

	for i := int32(0); i < 10; i++ {
		program = append(program,
			insts.SD(insts.A0, insts.T0, 8*i),
			insts.LD(insts.A0, insts.T0, 8*i))
	}

	return Benchmark{
		Name:         "memory_sequential",
		Description:  "10 store/load pairs to sequential addresses - measures memory latency",
		Program:      append(program, insts.TRAP()),
		ExpectedExit: 42,
	}
}

// Five calls to a leaf function that increments a0.
func functionCalls() Benchmark {
	const calls = 5

	program := []uint32{insts.ADDI(insts.A0, insts.Zero, 0)}
	leaf := int32(calls + 2)

	for i := int32(1); i <= calls; i++ {
		program = append(program, insts.JAL(insts.RA, 4*(leaf-i)))
	}

	program = append(program,
		insts.TRAP(),
		insts.ADDI(insts.A0, insts.A0, 1),
		insts.JALR(insts.Zero, insts.RA, 0),
	)

	return Benchmark{
		Name:         "function_calls",
		Description:  "5 JAL/JALR call and return pairs - measures indirect jump redirects",
		Program:      program,
		ExpectedExit: calls,
	}
}

// Taken branches that each skip one poisoned instruction.
func branchTaken() Benchmark {
	program := []uint32{insts.ADDI(insts.A0, insts.Zero, 0)}

	for i := 0; i < 5; i++ {
		program = append(program,
			insts.ADDI(insts.A0, insts.A0, 1),
			insts.BEQ(insts.Zero, insts.Zero, 8),
			insts.ADDI(insts.A0, insts.A0, 100),
		)
	}

	return Benchmark{
		Name:         "branch_taken",
		Description:  "5 always-taken forward branches - measures redirect cost",
		Program:      append(program, insts.TRAP()),
		ExpectedExit: 5,
	}
}

func mixedOperations() Benchmark {
	return Benchmark{
		Name:        "mixed_operations",
		Description: "MUL, DIV, SUB and ADD on shared operands - measures long-latency units",
		Program: []uint32{
			insts.ADDI(insts.T0, insts.Zero, 6),
			insts.ADDI(insts.T1, insts.Zero, 7),
			insts.MUL(insts.A0, insts.T0, insts.T1),
			insts.SUB(insts.A0, insts.A0, insts.T0),
			insts.DIV(insts.A1, insts.A0, insts.T0),
			insts.ADD(insts.A0, insts.A0, insts.A1),
			insts.TRAP(),
		},
		ExpectedExit: 42,
	}
}

// Sums the four elements of A*B with A and B read from the data region.
func matrixMultiply2x2() Benchmark {
	a := []uint8{insts.A1, insts.A2, insts.A3, insts.A4}
	b := []uint8{insts.A5, insts.T1, insts.T2, insts.S1}

	program := []uint32{insts.AUIPC(insts.T0, dataOffset>>12)}
	for i, r := range append(append([]uint8{}, a...), b...) {
		program = append(program, insts.LD(r, insts.T0, int32(8*i)))
	}

	program = append(program, insts.ADDI(insts.A0, insts.Zero, 0))

	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			for k := 0; k < 2; k++ {
				program = append(program,
					insts.MUL(insts.S0, a[2*row+k], b[2*k+col]),
					insts.ADD(insts.A0, insts.A0, insts.S0))
			}
		}
	}

	program = append(program, insts.SD(insts.A0, insts.T0, 64), insts.TRAP())

	return Benchmark{
		Name:         "matrix_multiply_2x2",
		Description:  "2x2 integer matrix multiply from memory - measures load-use and MUL latency",
		Program:      program,
		Data:         []uint64{1, 2, 3, 4, 5, 6, 7, 8},
		ExpectedExit: 134,
	}
}

// Sums 1..100 in a backward-branching loop.
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "100 iterations of a counted loop - measures branch prediction",
		Program: []uint32{
			insts.ADDI(insts.A0, insts.Zero, 0),
			insts.ADDI(insts.T0, insts.Zero, 100),
			insts.ADD(insts.A0, insts.A0, insts.T0),
			insts.ADDI(insts.T0, insts.T0, -1),
			insts.BNE(insts.T0, insts.Zero, -8),
			insts.TRAP(),
		},
		ExpectedExit: 5050,
	}
}

// Loads one word per 64-byte block over 32 blocks.
func strideWalk() Benchmark {
	const blocks = 32

	data := make([]uint64, 8*blocks)
	for i := 0; i < blocks; i++ {
		data[8*i] = uint64(i)
	}

	return Benchmark{
		Name:        "stride_walk",
		Description: "32 loads at a 64-byte stride - measures cache misses",
		Program: []uint32{
			insts.AUIPC(insts.T0, dataOffset>>12),
			insts.ADDI(insts.A0, insts.Zero, 0),
			insts.ADDI(insts.T2, insts.Zero, blocks),
			insts.LD(insts.T1, insts.T0, 0),
			insts.ADD(insts.A0, insts.A0, insts.T1),
			insts.ADDI(insts.T0, insts.T0, 64),
			insts.ADDI(insts.T2, insts.T2, -1),
			insts.BNE(insts.T2, insts.Zero, -16),
			insts.TRAP(),
		},
		Data:         data,
		ExpectedExit: blocks * (blocks - 1) / 2,
	}
}
