package main

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chaofanll/TransformerEngine/internal/dtype"
)

// Case is one benchmark configuration: a shape, a precision triple, and the
// epilogue selection. Case files on disk are CBOR arrays of these.
type Case struct {
	Name string `cbor:"name"`

	M int `cbor:"m"`
	N int `cbor:"n"`
	K int `cbor:"k"`

	DTypeA string `cbor:"dtype_a"`
	DTypeB string `cbor:"dtype_b"`
	DTypeD string `cbor:"dtype_d"`

	Bias       bool `cbor:"bias,omitempty"`
	Activation bool `cbor:"activation,omitempty"`
	Grad       bool `cbor:"grad,omitempty"`
	Accumulate bool `cbor:"accumulate,omitempty"`
	TransA     bool `cbor:"trans_a,omitempty"`
	TransB     bool `cbor:"trans_b,omitempty"`

	// MathSMCount caps the compute units one call may occupy; 0 = no cap.
	MathSMCount int `cbor:"math_sm_count,omitempty"`
}

func (c Case) validate() error {
	if c.M <= 0 || c.N <= 0 || c.K <= 0 {
		return fmt.Errorf("case %q: non-positive dimension m=%d n=%d k=%d", c.Name, c.M, c.N, c.K)
	}
	for _, s := range []string{c.DTypeA, c.DTypeB, c.DTypeD} {
		if _, ok := dtype.Parse(s); !ok {
			return fmt.Errorf("case %q: unknown precision %q", c.Name, s)
		}
	}
	return nil
}

func defaultCases() []Case {
	return []Case{
		{Name: "fp32_512", M: 512, N: 512, K: 512, DTypeA: "float32", DTypeB: "float32", DTypeD: "float32"},
		{Name: "fp32_bias_gelu", M: 256, N: 1024, K: 256, DTypeA: "float32", DTypeB: "float32", DTypeD: "float32", Bias: true, Activation: true},
		{Name: "fp16_out", M: 256, N: 256, K: 512, DTypeA: "float32", DTypeB: "float32", DTypeD: "float16", Bias: true},
		{Name: "bf16_all", M: 256, N: 256, K: 256, DTypeA: "bfloat16", DTypeB: "bfloat16", DTypeD: "bfloat16", MathSMCount: 8},
		{Name: "fp8_fwd", M: 256, N: 512, K: 256, DTypeA: "fp8e4m3", DTypeB: "fp8e4m3", DTypeD: "float16", Bias: true, Activation: true},
		{Name: "fp8_bgrad", M: 256, N: 256, K: 256, DTypeA: "float32", DTypeB: "fp8e5m2", DTypeD: "float32", Bias: true, Grad: true},
	}
}

func loadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []Case
	if err := cbor.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for _, c := range cases {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

func saveCases(path string, cases []Case) error {
	data, err := cbor.Marshal(cases)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
