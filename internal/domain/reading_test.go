package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractReadingGroupedDigits(t *testing.T) {
	reading, err := ExtractReading("오늘 8,432 걸음")
	require.NoError(t, err)
	require.Equal(t, 8432, reading.Steps)
	require.Equal(t, PatternGroupedSteps, reading.MatchedPattern)
	require.Equal(t, ExtractedConfidence, reading.Confidence)
}

func TestExtractReadingPlainDigits(t *testing.T) {
	reading, err := ExtractReading("걸음 수 912 걸음")
	require.NoError(t, err)
	require.Equal(t, 912, reading.Steps)
	require.Equal(t, PatternPlainSteps, reading.MatchedPattern)
}

func TestExtractReadingFullWidthComma(t *testing.T) {
	reading, err := ExtractReading("12，345 걸음")
	require.NoError(t, err)
	require.Equal(t, 12345, reading.Steps)
}

func TestExtractReadingStripsGoalAnnotation(t *testing.T) {
	// Health apps render "current / goal"; the goal must not win.
	reading, err := ExtractReading("8,432 걸음 /10,000 걸음")
	require.NoError(t, err)
	require.Equal(t, 8432, reading.Steps)

	// Goal rendered before the actual count.
	reading, err = ExtractReading("/10,000 걸음 8,432 걸음")
	require.NoError(t, err)
	require.Equal(t, 8432, reading.Steps)
}

func TestExtractReadingCollapsesWhitespace(t *testing.T) {
	reading, err := ExtractReading("  8,432\n걸음  ")
	require.NoError(t, err)
	require.Equal(t, 8432, reading.Steps)
}

func TestExtractReadingRejectsImplausible(t *testing.T) {
	for _, text := range []string{
		"50 걸음",
		"250000 걸음",
		"walked a lot today",
		"",
	} {
		_, err := ExtractReading(text)
		require.ErrorIs(t, err, ErrNoStepCount, "text: %q", text)
	}
}

func TestExtractReadingOutOfRangeFallsThrough(t *testing.T) {
	// The grouped match is too large but the plain pattern still finds a
	// plausible count.
	reading, err := ExtractReading("7500 걸음 누적 250,000 걸음")
	require.NoError(t, err)
	require.Equal(t, 7500, reading.Steps)
	require.Equal(t, PatternPlainSteps, reading.MatchedPattern)
}
