package services

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
)

// Supported problem categories
const (
	CategoryAddition       = "addition"
	CategoryMultiplication = "multiplication"
	CategoryIntegrals      = "integrals"
)

// Answer spec types
const (
	AnswerInteger    = "integer"
	AnswerExpression = "expression"
)

// GeneratedRound is the deterministic output of the round generator: both
// participants derive the identical problem from (seed, index, category)
// without a central dealer.
type GeneratedRound struct {
	Prompt      string
	AnswerType  string
	AnswerValue string
	ContentHash string
}

// integralProblem pairs a display integral with its canonical antiderivative
// (constant of integration omitted; the judge normalizes "+C" away).
type integralProblem struct {
	prompt string
	answer string
}

var integralsByDifficulty = map[string][]integralProblem{
	"easy": {
		{`$\int x \, dx$`, `x^2/2`},
		{`$\int 3x^2 \, dx$`, `x^3`},
		{`$\int (2x + 5) \, dx$`, `x^2+5x`},
		{`$\int 4 \, dx$`, `4x`},
		{`$\int x^3 \, dx$`, `x^4/4`},
		{`$\int (x + 1) \, dx$`, `x^2/2+x`},
		{`$\int 6x \, dx$`, `3x^2`},
		{`$\int (3x^2 + 2x) \, dx$`, `x^3+x^2`},
	},
	"normal": {
		{`$\int x e^{x^2} \, dx$`, `e^(x^2)/2`},
		{`$\int \sin(x)\cos(x) \, dx$`, `sin^2(x)/2`},
		{`$\int \frac{1}{x} \, dx$`, `ln|x|`},
		{`$\int x e^x \, dx$`, `(x-1)e^x`},
		{`$\int \cos(2x) \, dx$`, `sin(2x)/2`},
		{`$\int \frac{2x}{x^2 + 1} \, dx$`, `ln(x^2+1)`},
		{`$\int x \sin(x) \, dx$`, `sin(x)-xcos(x)`},
		{`$\int e^{3x} \, dx$`, `e^(3x)/3`},
	},
	"hard": {
		{`$\int x^2 e^x \, dx$`, `(x^2-2x+2)e^x`},
		{`$\int \frac{1}{x^2 + 1} \, dx$`, `arctan(x)`},
		{`$\int \frac{1}{\sqrt{1 - x^2}} \, dx$`, `arcsin(x)`},
		{`$\int \ln(x) \, dx$`, `xln(x)-x`},
		{`$\int \tan(x) \, dx$`, `-ln|cos(x)|`},
		{`$\int \frac{x}{(x+1)^2} \, dx$`, `ln|x+1|+1/(x+1)`},
		{`$\int \sec^2(x) \, dx$`, `tan(x)`},
		{`$\int x^2 \ln(x) \, dx$`, `x^3ln(x)/3-x^3/9`},
	},
}

// operand ranges per difficulty
type operandBand struct{ low, high int }

var additionBands = map[string]operandBand{
	"easy":   {1, 20},
	"normal": {10, 99},
	"hard":   {100, 999},
}

var multiplicationBands = map[string]operandBand{
	"easy":   {1, 10},
	"normal": {2, 20},
	"hard":   {11, 99},
}

// GenerateRound is a pure function: the same (seed, index, category,
// difficulty) always yields the same problem. The per-round RNG is seeded
// from a hash over all four inputs so consecutive indices do not correlate.
func GenerateRound(seed int64, index int, category, difficulty string) GeneratedRound {
	rng := rand.New(rand.NewSource(roundSeed(seed, index, category, difficulty)))

	var g GeneratedRound
	switch category {
	case CategoryMultiplication:
		band := bandFor(multiplicationBands, difficulty)
		a := band.low + rng.Intn(band.high-band.low+1)
		b := band.low + rng.Intn(band.high-band.low+1)
		g = GeneratedRound{
			Prompt:      fmt.Sprintf(`$%d \times %d$`, a, b),
			AnswerType:  AnswerInteger,
			AnswerValue: fmt.Sprintf("%d", a*b),
		}
	case CategoryIntegrals:
		table, ok := integralsByDifficulty[difficulty]
		if !ok {
			table = integralsByDifficulty["normal"]
		}
		p := table[rng.Intn(len(table))]
		g = GeneratedRound{
			Prompt:      p.prompt,
			AnswerType:  AnswerExpression,
			AnswerValue: p.answer,
		}
	default: // addition
		band := bandFor(additionBands, difficulty)
		a := band.low + rng.Intn(band.high-band.low+1)
		b := band.low + rng.Intn(band.high-band.low+1)
		g = GeneratedRound{
			Prompt:      fmt.Sprintf(`$%d + %d$`, a, b),
			AnswerType:  AnswerInteger,
			AnswerValue: fmt.Sprintf("%d", a+b),
		}
	}

	g.ContentHash = contentHash(category, g.Prompt, g.AnswerValue)
	return g
}

func bandFor(bands map[string]operandBand, difficulty string) operandBand {
	if band, ok := bands[difficulty]; ok {
		return band
	}
	return bands["normal"]
}

func roundSeed(seed int64, index int, category, difficulty string) int64 {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	h.Write(buf[:])
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(difficulty))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63))
}

func contentHash(category, prompt, answer string) string {
	h := sha256.Sum256([]byte(category + "|" + prompt + "|" + answer))
	return hex.EncodeToString(h[:])
}
