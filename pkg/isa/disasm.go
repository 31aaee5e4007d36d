package isa

import "fmt"

// Disassemble renders raw into RISC-V assembly syntax, the same pairing
// of opcode switch and fmt.Sprintf the teacher's vm.Disassemble uses for
// RiSC-32. Coverage matches the handler tables in this package: base
// RV32I/RV64I, M, A, and the common C subset; anything else falls back
// to a hex dump rather than guessing at a mnemonic.
func Disassemble(raw uint32, is16 bool) string {
	if is16 {
		return disassembleCompressed(uint16(raw))
	}
	switch opcode(raw) {
	case opLUI:
		return fmt.Sprintf("lui x%d, 0x%x", rd(raw), uint32(immU(raw))>>12)
	case opAUIPC:
		return fmt.Sprintf("auipc x%d, 0x%x", rd(raw), uint32(immU(raw))>>12)
	case opJAL:
		return fmt.Sprintf("jal x%d, %d", rd(raw), immJ(raw))
	case opJALR:
		return fmt.Sprintf("jalr x%d, %d(x%d)", rd(raw), immI(raw), rs1(raw))
	case opBranch:
		return fmt.Sprintf("%s x%d, x%d, %d", branchMnemonic(funct3(raw)), rs1(raw), rs2(raw), immB(raw))
	case opLoad:
		return fmt.Sprintf("%s x%d, %d(x%d)", loadMnemonic(funct3(raw)), rd(raw), immI(raw), rs1(raw))
	case opStore:
		return fmt.Sprintf("%s x%d, %d(x%d)", storeMnemonic(funct3(raw)), rs2(raw), immS(raw), rs1(raw))
	case opImm:
		return disassembleImm(raw)
	case opImm32:
		return disassembleImm32(raw)
	case opOp:
		if funct7(raw) == 0x01 {
			return fmt.Sprintf("%s x%d, x%d, x%d", mMnemonic(funct3(raw)), rd(raw), rs1(raw), rs2(raw))
		}
		return fmt.Sprintf("%s x%d, x%d, x%d", opMnemonic(funct3(raw), funct7(raw)), rd(raw), rs1(raw), rs2(raw))
	case opOp32:
		if funct7(raw) == 0x01 {
			return fmt.Sprintf("%sw x%d, x%d, x%d", mMnemonic(funct3(raw)), rd(raw), rs1(raw), rs2(raw))
		}
		return fmt.Sprintf("%s x%d, x%d, x%d", op32Mnemonic(funct3(raw), funct7(raw)), rd(raw), rs1(raw), rs2(raw))
	case opFence:
		return "fence"
	case opSystem:
		if funct3(raw) != 0 {
			return fmt.Sprintf("<csr 0x%08x>", raw)
		}
		if (raw>>20) == 1 {
			return "ebreak"
		}
		return "ecall"
	case opAMO:
		return fmt.Sprintf("%s x%d, x%d, (x%d)", amoMnemonic(funct5(raw)), rd(raw), rs2(raw), rs1(raw))
	default:
		return fmt.Sprintf("<unknown instruction: 0x%08x>", raw)
	}
}

func branchMnemonic(f3 uint32) string {
	switch f3 {
	case 0:
		return "beq"
	case 1:
		return "bne"
	case 4:
		return "blt"
	case 5:
		return "bge"
	case 6:
		return "bltu"
	case 7:
		return "bgeu"
	default:
		return "b?"
	}
}

func loadMnemonic(f3 uint32) string {
	switch f3 {
	case 0:
		return "lb"
	case 1:
		return "lh"
	case 2:
		return "lw"
	case 3:
		return "ld"
	case 4:
		return "lbu"
	case 5:
		return "lhu"
	case 6:
		return "lwu"
	default:
		return "l?"
	}
}

func storeMnemonic(f3 uint32) string {
	switch f3 {
	case 0:
		return "sb"
	case 1:
		return "sh"
	case 2:
		return "sw"
	case 3:
		return "sd"
	default:
		return "s?"
	}
}

func disassembleImm(raw uint32) string {
	f3 := funct3(raw)
	if f3 == 1 || f3 == 5 {
		shamt := rs2(raw)
		if f3 == 5 && (raw>>30)&1 == 1 {
			return fmt.Sprintf("srai x%d, x%d, %d", rd(raw), rs1(raw), shamt)
		}
		if f3 == 5 {
			return fmt.Sprintf("srli x%d, x%d, %d", rd(raw), rs1(raw), shamt)
		}
		return fmt.Sprintf("slli x%d, x%d, %d", rd(raw), rs1(raw), shamt)
	}
	names := map[uint32]string{0: "addi", 2: "slti", 3: "sltiu", 4: "xori", 6: "ori", 7: "andi"}
	return fmt.Sprintf("%s x%d, x%d, %d", names[f3], rd(raw), rs1(raw), immI(raw))
}

func disassembleImm32(raw uint32) string {
	f3 := funct3(raw)
	if f3 == 1 || f3 == 5 {
		shamt := rs2(raw)
		if f3 == 5 && (raw>>30)&1 == 1 {
			return fmt.Sprintf("sraiw x%d, x%d, %d", rd(raw), rs1(raw), shamt)
		}
		if f3 == 5 {
			return fmt.Sprintf("srliw x%d, x%d, %d", rd(raw), rs1(raw), shamt)
		}
		return fmt.Sprintf("slliw x%d, x%d, %d", rd(raw), rs1(raw), shamt)
	}
	return fmt.Sprintf("addiw x%d, x%d, %d", rd(raw), rs1(raw), immI(raw))
}

func opMnemonic(f3, f7 uint32) string {
	switch f3 {
	case 0:
		if f7 == 0x20 {
			return "sub"
		}
		return "add"
	case 1:
		return "sll"
	case 2:
		return "slt"
	case 3:
		return "sltu"
	case 4:
		return "xor"
	case 5:
		if f7 == 0x20 {
			return "sra"
		}
		return "srl"
	case 6:
		return "or"
	default:
		return "and"
	}
}

func op32Mnemonic(f3, f7 uint32) string {
	switch f3 {
	case 0:
		if f7 == 0x20 {
			return "subw"
		}
		return "addw"
	case 1:
		return "sllw"
	case 5:
		if f7 == 0x20 {
			return "sraw"
		}
		return "srlw"
	default:
		return "?w"
	}
}

func mMnemonic(f3 uint32) string {
	names := [...]string{"mul", "mulh", "mulhsu", "mulhu", "div", "divu", "rem", "remu"}
	if int(f3) < len(names) {
		return names[f3]
	}
	return "m?"
}

func amoMnemonic(fn uint32) string {
	switch fn {
	case amoFuncLR:
		return "lr.w"
	case amoFuncSC:
		return "sc.w"
	case amoFuncSWAP:
		return "amoswap.w"
	case amoFuncADD:
		return "amoadd.w"
	case amoFuncXOR:
		return "amoxor.w"
	case amoFuncAND:
		return "amoand.w"
	case amoFuncOR:
		return "amoor.w"
	case amoFuncMIN:
		return "amomin.w"
	case amoFuncMAX:
		return "amomax.w"
	case amoFuncMINU:
		return "amominu.w"
	case amoFuncMAXU:
		return "amomaxu.w"
	default:
		return "amo?"
	}
}

// disassembleCompressed names only part of the subset decodeCompressed
// executes (c.addi4spn, c.lw, c.sw, c.addi, c.li, c.j, c.beqz, c.bnez,
// c.slli, c.jr, c.ebreak); every other compressed instruction, executed
// or not, prints as a hex dump rather than a guessed mnemonic.
func disassembleCompressed(r uint16) string {
	op := r & 0x3
	f3 := (r >> 13) & 0x7
	switch {
	case op == 0b00 && f3 == 0b000:
		return fmt.Sprintf("c.addi4spn x%d", cReg(r>>2))
	case op == 0b00 && f3 == 0b010:
		return fmt.Sprintf("c.lw x%d, (x%d)", cReg(r>>2), cReg(r>>7))
	case op == 0b00 && f3 == 0b110:
		return fmt.Sprintf("c.sw x%d, (x%d)", cReg(r>>2), cReg(r>>7))
	case op == 0b01 && f3 == 0b000:
		return fmt.Sprintf("c.addi x%d, %d", (r>>7)&0x1f, ciImm6(r))
	case op == 0b01 && f3 == 0b010:
		return fmt.Sprintf("c.li x%d, %d", (r>>7)&0x1f, ciImm6(r))
	case op == 0b01 && f3 == 0b101:
		return fmt.Sprintf("c.j %d", cjTarget(r))
	case op == 0b01 && f3 == 0b110:
		return fmt.Sprintf("c.beqz x%d, %d", cReg(r>>7), cbOffset(r))
	case op == 0b01 && f3 == 0b111:
		return fmt.Sprintf("c.bnez x%d, %d", cReg(r>>7), cbOffset(r))
	case op == 0b10 && f3 == 0b000:
		return fmt.Sprintf("c.slli x%d, %d", (r>>7)&0x1f, cbShamt(r))
	case op == 0b10 && f3 == 0b100 && (r>>12)&1 == 0 && (r>>2)&0x1f == 0:
		return fmt.Sprintf("c.jr x%d", (r>>7)&0x1f)
	case op == 0b10 && f3 == 0b100 && (r>>12)&1 == 1 && (r>>2)&0x1f == 0 && (r>>7)&0x1f == 0:
		return "c.ebreak"
	default:
		return fmt.Sprintf("<unknown compressed instruction: 0x%04x>", r)
	}
}
