package ffmpegproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateArgsRequiresInput(t *testing.T) {
	err := ValidateArgs([]string{"-c:v", "libx264", "out.mp4"})
	require.ErrorContains(t, err, "missing input")
}

func TestValidateArgsRequiresOutput(t *testing.T) {
	err := ValidateArgs([]string{"-i", "in.mp4", "-c:v", "libx264"})
	require.ErrorContains(t, err, "missing output")
}

func TestValidateArgsRejectsAmbiguousProfile(t *testing.T) {
	err := ValidateArgs([]string{"-i", "in.mp4", "-profile", "high", "out.mp4"})
	require.ErrorContains(t, err, "ambiguous -profile")
}

func TestValidateArgsRejectsDuplicateVideoFilter(t *testing.T) {
	err := ValidateArgs([]string{"-i", "in.mp4", "-vf", "scale=100:100", "-vf", "hflip", "out.mp4"})
	require.ErrorContains(t, err, "multiple video filter")
}

func TestValidateArgsAcceptsWellFormedInvocation(t *testing.T) {
	err := ValidateArgs([]string{"-i", "in.mp4", "-c:v", "libx264", "-vf", "scale=100:100", "out.mp4"})
	require.NoError(t, err)
}
