package avm2

// Opcodes. Operand encodings are listed in opInfo.
const (
	OpBkpt           byte = 0x01
	OpNop            byte = 0x02
	OpThrow          byte = 0x03
	OpGetSuper       byte = 0x04
	OpSetSuper       byte = 0x05
	OpKill           byte = 0x08
	OpLabel          byte = 0x09
	OpIfNLT          byte = 0x0C
	OpIfNLE          byte = 0x0D
	OpIfNGT          byte = 0x0E
	OpIfNGE          byte = 0x0F
	OpJump           byte = 0x10
	OpIfTrue         byte = 0x11
	OpIfFalse        byte = 0x12
	OpIfEq           byte = 0x13
	OpIfNe           byte = 0x14
	OpIfLT           byte = 0x15
	OpIfLE           byte = 0x16
	OpIfGT           byte = 0x17
	OpIfGE           byte = 0x18
	OpIfStrictEq     byte = 0x19
	OpIfStrictNe     byte = 0x1A
	OpLookupSwitch   byte = 0x1B
	OpPushWith       byte = 0x1C
	OpPopScope       byte = 0x1D
	OpNextName       byte = 0x1E
	OpHasNext        byte = 0x1F
	OpPushNull       byte = 0x20
	OpPushUndefined  byte = 0x21
	OpNextValue      byte = 0x23
	OpPushByte       byte = 0x24
	OpPushShort      byte = 0x25
	OpPushTrue       byte = 0x26
	OpPushFalse      byte = 0x27
	OpPushNaN        byte = 0x28
	OpPop            byte = 0x29
	OpDup            byte = 0x2A
	OpSwap           byte = 0x2B
	OpPushString     byte = 0x2C
	OpPushInt        byte = 0x2D
	OpPushUint       byte = 0x2E
	OpPushDouble     byte = 0x2F
	OpPushScope      byte = 0x30
	OpHasNext2       byte = 0x32
	OpNewFunction    byte = 0x40
	OpCall           byte = 0x41
	OpConstruct      byte = 0x42
	OpCallMethod     byte = 0x43
	OpCallStatic     byte = 0x44
	OpCallSuper      byte = 0x45
	OpCallProperty   byte = 0x46
	OpReturnVoid     byte = 0x47
	OpReturnValue    byte = 0x48
	OpConstructSuper byte = 0x49
	OpConstructProp  byte = 0x4A
	OpCallPropLex    byte = 0x4C
	OpCallSuperVoid  byte = 0x4E
	OpCallPropVoid   byte = 0x4F
	OpNewObject      byte = 0x55
	OpNewArray       byte = 0x56
	OpNewActivation  byte = 0x57
	OpNewClass       byte = 0x58
	OpNewCatch       byte = 0x5A
	OpFindPropStrict byte = 0x5D
	OpFindProperty   byte = 0x5E
	OpGetLex         byte = 0x60
	OpSetProperty    byte = 0x61
	OpGetLocal       byte = 0x62
	OpSetLocal       byte = 0x63
	OpGetGlobalScope byte = 0x64
	OpGetScopeObject byte = 0x65
	OpGetProperty    byte = 0x66
	OpInitProperty   byte = 0x68
	OpDeleteProperty byte = 0x6A
	OpGetSlot        byte = 0x6C
	OpSetSlot        byte = 0x6D
	OpGetGlobalSlot  byte = 0x6E
	OpSetGlobalSlot  byte = 0x6F
	OpConvertS       byte = 0x70
	OpConvertI       byte = 0x73
	OpConvertU       byte = 0x74
	OpConvertD       byte = 0x75
	OpConvertB       byte = 0x76
	OpConvertO       byte = 0x77
	OpCoerce         byte = 0x80
	OpCoerceB        byte = 0x81
	OpCoerceA        byte = 0x82
	OpCoerceI        byte = 0x83
	OpCoerceD        byte = 0x84
	OpCoerceS        byte = 0x85
	OpAsType         byte = 0x86
	OpAsTypeLate     byte = 0x87
	OpCoerceU        byte = 0x88
	OpCoerceO        byte = 0x89
	OpNegate         byte = 0x90
	OpIncrement      byte = 0x91
	OpIncLocal       byte = 0x92
	OpDecrement      byte = 0x93
	OpDecLocal       byte = 0x94
	OpTypeOf         byte = 0x95
	OpNot            byte = 0x96
	OpBitNot         byte = 0x97
	OpAdd            byte = 0xA0
	OpSubtract       byte = 0xA1
	OpMultiply       byte = 0xA2
	OpDivide         byte = 0xA3
	OpModulo         byte = 0xA4
	OpLShift         byte = 0xA5
	OpRShift         byte = 0xA6
	OpURShift        byte = 0xA7
	OpBitAnd         byte = 0xA8
	OpBitOr          byte = 0xA9
	OpBitXor         byte = 0xAA
	OpEquals         byte = 0xAB
	OpStrictEquals   byte = 0xAC
	OpLessThan       byte = 0xAD
	OpLessEquals     byte = 0xAE
	OpGreaterThan    byte = 0xAF
	OpGreaterEquals  byte = 0xB0
	OpInstanceOf     byte = 0xB1
	OpIsType         byte = 0xB2
	OpIsTypeLate     byte = 0xB3
	OpIn             byte = 0xB4
	OpIncrementI     byte = 0xC0
	OpDecrementI     byte = 0xC1
	OpIncLocalI      byte = 0xC2
	OpDecLocalI      byte = 0xC3
	OpNegateI        byte = 0xC4
	OpAddI           byte = 0xC5
	OpSubtractI      byte = 0xC6
	OpMultiplyI      byte = 0xC7
	OpGetLocal0      byte = 0xD0
	OpGetLocal1      byte = 0xD1
	OpGetLocal2      byte = 0xD2
	OpGetLocal3      byte = 0xD3
	OpSetLocal0      byte = 0xD4
	OpSetLocal1      byte = 0xD5
	OpSetLocal2      byte = 0xD6
	OpSetLocal3      byte = 0xD7
	OpDebug          byte = 0xEF
	OpDebugLine      byte = 0xF0
	OpDebugFile      byte = 0xF1
	OpBkptLine       byte = 0xF2
	OpTimestamp      byte = 0xF3
)

// operand kinds
type operand uint8

const (
	opU30 operand = iota + 1
	opS24
	opU8
	opS8
	opRegister
	opMultiname
	opString
	opInt
	opUint
	opDouble
	opMethod
	opClass
	opException
	opDebug // u8 u30 u8 u30
)

type opSpec struct {
	name     string
	operands []operand
}

// opInfo lists the implemented opcodes. Anything else is rejected by the
// verifier.
var opInfo = map[byte]opSpec{
	OpBkpt:           {"bkpt", nil},
	OpNop:            {"nop", nil},
	OpThrow:          {"throw", nil},
	OpGetSuper:       {"getsuper", []operand{opMultiname}},
	OpSetSuper:       {"setsuper", []operand{opMultiname}},
	OpKill:           {"kill", []operand{opRegister}},
	OpLabel:          {"label", nil},
	OpIfNLT:          {"ifnlt", []operand{opS24}},
	OpIfNLE:          {"ifnle", []operand{opS24}},
	OpIfNGT:          {"ifngt", []operand{opS24}},
	OpIfNGE:          {"ifnge", []operand{opS24}},
	OpJump:           {"jump", []operand{opS24}},
	OpIfTrue:         {"iftrue", []operand{opS24}},
	OpIfFalse:        {"iffalse", []operand{opS24}},
	OpIfEq:           {"ifeq", []operand{opS24}},
	OpIfNe:           {"ifne", []operand{opS24}},
	OpIfLT:           {"iflt", []operand{opS24}},
	OpIfLE:           {"ifle", []operand{opS24}},
	OpIfGT:           {"ifgt", []operand{opS24}},
	OpIfGE:           {"ifge", []operand{opS24}},
	OpIfStrictEq:     {"ifstricteq", []operand{opS24}},
	OpIfStrictNe:     {"ifstrictne", []operand{opS24}},
	OpLookupSwitch:   {"lookupswitch", nil},
	OpPushWith:       {"pushwith", nil},
	OpPopScope:       {"popscope", nil},
	OpNextName:       {"nextname", nil},
	OpHasNext:        {"hasnext", nil},
	OpPushNull:       {"pushnull", nil},
	OpPushUndefined:  {"pushundefined", nil},
	OpNextValue:      {"nextvalue", nil},
	OpPushByte:       {"pushbyte", []operand{opS8}},
	OpPushShort:      {"pushshort", []operand{opU30}},
	OpPushTrue:       {"pushtrue", nil},
	OpPushFalse:      {"pushfalse", nil},
	OpPushNaN:        {"pushnan", nil},
	OpPop:            {"pop", nil},
	OpDup:            {"dup", nil},
	OpSwap:           {"swap", nil},
	OpPushString:     {"pushstring", []operand{opString}},
	OpPushInt:        {"pushint", []operand{opInt}},
	OpPushUint:       {"pushuint", []operand{opUint}},
	OpPushDouble:     {"pushdouble", []operand{opDouble}},
	OpPushScope:      {"pushscope", nil},
	OpHasNext2:       {"hasnext2", []operand{opRegister, opRegister}},
	OpNewFunction:    {"newfunction", []operand{opMethod}},
	OpCall:           {"call", []operand{opU30}},
	OpConstruct:      {"construct", []operand{opU30}},
	OpCallMethod:     {"callmethod", []operand{opU30, opU30}},
	OpCallStatic:     {"callstatic", []operand{opMethod, opU30}},
	OpCallSuper:      {"callsuper", []operand{opMultiname, opU30}},
	OpCallProperty:   {"callproperty", []operand{opMultiname, opU30}},
	OpReturnVoid:     {"returnvoid", nil},
	OpReturnValue:    {"returnvalue", nil},
	OpConstructSuper: {"constructsuper", []operand{opU30}},
	OpConstructProp:  {"constructprop", []operand{opMultiname, opU30}},
	OpCallPropLex:    {"callproplex", []operand{opMultiname, opU30}},
	OpCallSuperVoid:  {"callsupervoid", []operand{opMultiname, opU30}},
	OpCallPropVoid:   {"callpropvoid", []operand{opMultiname, opU30}},
	OpNewObject:      {"newobject", []operand{opU30}},
	OpNewArray:       {"newarray", []operand{opU30}},
	OpNewActivation:  {"newactivation", nil},
	OpNewClass:       {"newclass", []operand{opClass}},
	OpNewCatch:       {"newcatch", []operand{opException}},
	OpFindPropStrict: {"findpropstrict", []operand{opMultiname}},
	OpFindProperty:   {"findproperty", []operand{opMultiname}},
	OpGetLex:         {"getlex", []operand{opMultiname}},
	OpSetProperty:    {"setproperty", []operand{opMultiname}},
	OpGetLocal:       {"getlocal", []operand{opRegister}},
	OpSetLocal:       {"setlocal", []operand{opRegister}},
	OpGetGlobalScope: {"getglobalscope", nil},
	OpGetScopeObject: {"getscopeobject", []operand{opU8}},
	OpGetProperty:    {"getproperty", []operand{opMultiname}},
	OpInitProperty:   {"initproperty", []operand{opMultiname}},
	OpDeleteProperty: {"deleteproperty", []operand{opMultiname}},
	OpGetSlot:        {"getslot", []operand{opU30}},
	OpSetSlot:        {"setslot", []operand{opU30}},
	OpGetGlobalSlot:  {"getglobalslot", []operand{opU30}},
	OpSetGlobalSlot:  {"setglobalslot", []operand{opU30}},
	OpConvertS:       {"convert_s", nil},
	OpConvertI:       {"convert_i", nil},
	OpConvertU:       {"convert_u", nil},
	OpConvertD:       {"convert_d", nil},
	OpConvertB:       {"convert_b", nil},
	OpConvertO:       {"convert_o", nil},
	OpCoerce:         {"coerce", []operand{opMultiname}},
	OpCoerceB:        {"coerce_b", nil},
	OpCoerceA:        {"coerce_a", nil},
	OpCoerceI:        {"coerce_i", nil},
	OpCoerceD:        {"coerce_d", nil},
	OpCoerceS:        {"coerce_s", nil},
	OpAsType:         {"astype", []operand{opMultiname}},
	OpAsTypeLate:     {"astypelate", nil},
	OpCoerceU:        {"coerce_u", nil},
	OpCoerceO:        {"coerce_o", nil},
	OpNegate:         {"negate", nil},
	OpIncrement:      {"increment", nil},
	OpIncLocal:       {"inclocal", []operand{opRegister}},
	OpDecrement:      {"decrement", nil},
	OpDecLocal:       {"declocal", []operand{opRegister}},
	OpTypeOf:         {"typeof", nil},
	OpNot:            {"not", nil},
	OpBitNot:         {"bitnot", nil},
	OpAdd:            {"add", nil},
	OpSubtract:       {"subtract", nil},
	OpMultiply:       {"multiply", nil},
	OpDivide:         {"divide", nil},
	OpModulo:         {"modulo", nil},
	OpLShift:         {"lshift", nil},
	OpRShift:         {"rshift", nil},
	OpURShift:        {"urshift", nil},
	OpBitAnd:         {"bitand", nil},
	OpBitOr:          {"bitor", nil},
	OpBitXor:         {"bitxor", nil},
	OpEquals:         {"equals", nil},
	OpStrictEquals:   {"strictequals", nil},
	OpLessThan:       {"lessthan", nil},
	OpLessEquals:     {"lessequals", nil},
	OpGreaterThan:    {"greaterthan", nil},
	OpGreaterEquals:  {"greaterequals", nil},
	OpInstanceOf:     {"instanceof", nil},
	OpIsType:         {"istype", []operand{opMultiname}},
	OpIsTypeLate:     {"istypelate", nil},
	OpIn:             {"in", nil},
	OpIncrementI:     {"increment_i", nil},
	OpDecrementI:     {"decrement_i", nil},
	OpIncLocalI:      {"inclocal_i", []operand{opRegister}},
	OpDecLocalI:      {"declocal_i", []operand{opRegister}},
	OpNegateI:        {"negate_i", nil},
	OpAddI:           {"add_i", nil},
	OpSubtractI:      {"subtract_i", nil},
	OpMultiplyI:      {"multiply_i", nil},
	OpGetLocal0:      {"getlocal0", nil},
	OpGetLocal1:      {"getlocal1", nil},
	OpGetLocal2:      {"getlocal2", nil},
	OpGetLocal3:      {"getlocal3", nil},
	OpSetLocal0:      {"setlocal0", nil},
	OpSetLocal1:      {"setlocal1", nil},
	OpSetLocal2:      {"setlocal2", nil},
	OpSetLocal3:      {"setlocal3", nil},
	OpDebug:          {"debug", []operand{opDebug}},
	OpDebugLine:      {"debugline", []operand{opU30}},
	OpDebugFile:      {"debugfile", []operand{opString}},
	OpBkptLine:       {"bkptline", []operand{opU30}},
	OpTimestamp:      {"timestamp", nil},
}

// OpName returns the mnemonic of op.
func OpName(op byte) string {
	if s, ok := opInfo[op]; ok {
		return s.name
	}
	return "unknown"
}

func isBranch(op byte) bool {
	return op >= OpIfNLT && op <= OpIfStrictNe
}

// terminates reports whether control never falls through op.
func terminates(op byte) bool {
	switch op {
	case OpJump, OpLookupSwitch, OpReturnVoid, OpReturnValue, OpThrow:
		return true
	}
	return false
}
