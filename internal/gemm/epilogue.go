package gemm

// epilogue is the requested post-multiply transformation: a tagged
// combination of bias, activation, and forward/gradient mode. The activation
// is requested by supplying a pre-activation auxiliary buffer; the bias by
// supplying a bias tensor. In gradient mode the second multiplicand carries
// the upstream gradient, which is how backward passes are expressed as
// multiplies.
type epilogue struct {
	bias bool
	act  bool
	grad bool
}

func (e epilogue) none() bool { return !e.bias && !e.act }

// epilogueKind is the backend's epilogue selector.
type epilogueKind int

const (
	epilogueIdentity epilogueKind = iota
	epilogueBias                  // forward bias add
	epilogueBGradB                // bias gradient reduced from the second operand
	epilogueGeluAux               // activation with pre-activation stashed to aux
	epilogueDGelu                 // activation gradient from stashed pre-activation
	epilogueGeluAuxBias           // bias add + activation + aux stash
	epilogueDGeluBGrad            // activation gradient + bias gradient reduction
)

var epilogueNames = map[epilogueKind]string{
	epilogueIdentity:    "identity",
	epilogueBias:        "bias",
	epilogueBGradB:      "bgrad",
	epilogueGeluAux:     "gelu_aux",
	epilogueDGelu:       "dgelu",
	epilogueGeluAuxBias: "gelu_aux_bias",
	epilogueDGeluBGrad:  "dgelu_bgrad",
}

func (k epilogueKind) String() string { return epilogueNames[k] }

// kind maps the configuration to the backend selector. The table is fixed;
// there are no other meaningful combinations.
func (e epilogue) kind() epilogueKind {
	switch {
	case e.bias && e.act && e.grad:
		return epilogueDGeluBGrad
	case e.bias && e.act:
		return epilogueGeluAuxBias
	case e.act && e.grad:
		return epilogueDGelu
	case e.act:
		return epilogueGeluAux
	case e.bias && e.grad:
		return epilogueBGradB
	case e.bias:
		return epilogueBias
	default:
		return epilogueIdentity
	}
}
