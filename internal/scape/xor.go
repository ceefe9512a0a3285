package scape

import (
	"context"
	"fmt"
	"strings"
)

// XORScape scores a two-input one-output network on exclusive or. Fitness is
// the number of cases minus the summed squared error, so a perfect network
// scores 4 on the ground-truth cases.
type XORScape struct{}

func (XORScape) Name() string {
	return "xor"
}

func (XORScape) Evaluate(ctx context.Context, subject Subject) (Fitness, Trace, error) {
	return XORScape{}.EvaluateMode(ctx, subject, "gt")
}

func (XORScape) EvaluateMode(ctx context.Context, subject Subject, mode string) (Fitness, Trace, error) {
	mode, cases, err := xorCases(mode)
	if err != nil {
		return 0, nil, err
	}
	if subject.Network == nil {
		return 0, nil, fmt.Errorf("subject %d has no network", subject.ID)
	}
	if subject.Network.InputSize() != 2 || subject.Network.OutputSize() != 1 {
		return 0, nil, fmt.Errorf("xor requires 2 inputs and 1 output, subject %d has %d and %d",
			subject.ID, subject.Network.InputSize(), subject.Network.OutputSize())
	}
	// recurrent state must not leak between evaluations
	subject.Network.Reset()
	return evaluateXOR(ctx, mode, cases, func(in []float64) (float64, error) {
		out, err := subject.Network.Forward(in)
		if err != nil {
			return 0, err
		}
		return out[0], nil
	})
}

type xorCase struct {
	in   [2]float64
	want float64
}

var xorTruth = [4]xorCase{
	{in: [2]float64{0, 0}, want: 0},
	{in: [2]float64{0, 1}, want: 1},
	{in: [2]float64{1, 0}, want: 1},
	{in: [2]float64{1, 1}, want: 0},
}

// xorModes orders truth-table rows per evaluation mode. Validation and test
// repeat rows so a network that only fits the first pass is still caught.
var xorModes = map[string][]int{
	"gt":         {0, 1, 2, 3},
	"validation": {1, 2, 0, 3, 1, 2},
	"test":       {3, 2, 1, 0, 3, 0, 2, 1},
}

func xorCases(mode string) (string, []xorCase, error) {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" {
		mode = "gt"
	}
	rows, ok := xorModes[mode]
	if !ok {
		return "", nil, fmt.Errorf("unsupported xor mode: %s", mode)
	}
	cases := make([]xorCase, len(rows))
	for i, r := range rows {
		cases[i] = xorTruth[r]
	}
	return mode, cases, nil
}

func evaluateXOR(ctx context.Context, mode string, cases []xorCase, predict func([]float64) (float64, error)) (Fitness, Trace, error) {
	var sse float64
	predictions := make([]float64, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		got, err := predict(c.in[:])
		if err != nil {
			return 0, nil, err
		}
		predictions = append(predictions, got)
		sse += (got - c.want) * (got - c.want)
	}

	n := float64(len(cases))
	return Fitness(n - sse), Trace{
		"sse":         sse,
		"mse":         sse / n,
		"predictions": predictions,
		"mode":        mode,
		"cases":       len(cases),
	}, nil
}
