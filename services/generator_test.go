package services

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundIsDeterministic(t *testing.T) {
	for _, category := range []string{CategoryAddition, CategoryMultiplication, CategoryIntegrals} {
		for index := 1; index <= 5; index++ {
			a := GenerateRound(42, index, category, "normal")
			b := GenerateRound(42, index, category, "normal")
			assert.Equal(t, a, b, "category %s round %d", category, index)
		}
	}
}

func TestGenerateRoundVariesByIndexAndSeed(t *testing.T) {
	r1 := GenerateRound(42, 1, CategoryAddition, "normal")
	r2 := GenerateRound(42, 2, CategoryAddition, "normal")
	r3 := GenerateRound(43, 1, CategoryAddition, "normal")
	assert.NotEqual(t, r1.ContentHash, r2.ContentHash)
	assert.NotEqual(t, r1.ContentHash, r3.ContentHash)
}

func TestGenerateRoundAddition(t *testing.T) {
	g := GenerateRound(7, 1, CategoryAddition, "easy")
	assert.Equal(t, AnswerInteger, g.AnswerType)

	var a, b int
	_, err := fmt.Sscanf(g.Prompt, "$%d + %d$", &a, &b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a, 1)
	assert.LessOrEqual(t, a, 20)
	assert.GreaterOrEqual(t, b, 1)
	assert.LessOrEqual(t, b, 20)

	sum, err := strconv.Atoi(g.AnswerValue)
	require.NoError(t, err)
	assert.Equal(t, a+b, sum)
}

func TestGenerateRoundMultiplication(t *testing.T) {
	g := GenerateRound(7, 3, CategoryMultiplication, "hard")
	assert.Equal(t, AnswerInteger, g.AnswerType)

	var a, b int
	_, err := fmt.Sscanf(g.Prompt, `$%d \times %d$`, &a, &b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a, 11)
	assert.LessOrEqual(t, a, 99)

	product, err := strconv.Atoi(g.AnswerValue)
	require.NoError(t, err)
	assert.Equal(t, a*b, product)
}

func TestGenerateRoundIntegrals(t *testing.T) {
	for _, difficulty := range []string{"easy", "normal", "hard"} {
		g := GenerateRound(99, 2, CategoryIntegrals, difficulty)
		assert.Equal(t, AnswerExpression, g.AnswerType)
		assert.NotEmpty(t, g.AnswerValue)

		found := false
		for _, p := range integralsByDifficulty[difficulty] {
			if p.prompt == g.Prompt && p.answer == g.AnswerValue {
				found = true
				break
			}
		}
		assert.True(t, found, "generated integral must come from the %s table", difficulty)
	}
}

func TestGenerateRoundUnknownDifficultyFallsBack(t *testing.T) {
	g := GenerateRound(1, 1, CategoryIntegrals, "legendary")
	found := false
	for _, p := range integralsByDifficulty["normal"] {
		if p.prompt == g.Prompt {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestContentHashStability(t *testing.T) {
	g := GenerateRound(42, 1, CategoryAddition, "normal")
	assert.Len(t, g.ContentHash, 64)
	assert.Equal(t, g.ContentHash, contentHash(CategoryAddition, g.Prompt, g.AnswerValue))
}
