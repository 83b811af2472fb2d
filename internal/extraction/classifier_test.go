package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f fakeCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f.response, f.err
}
func (f fakeCompleter) ModelName() string              { return "fake" }
func (f fakeCompleter) Available(ctx context.Context) bool { return true }

func TestClassifyParsesSignal(t *testing.T) {
	c := fakeCompleter{response: `{"category":"preference","extractable":true,"summary":"likes tabs"}`}
	sig, err := Classify(context.Background(), c, "I prefer tabs over spaces")
	require.NoError(t, err)
	require.Equal(t, CategoryPreference, sig.Category)
	require.True(t, sig.Extractable)
}

func TestClassifyDegradesOnMalformedOutput(t *testing.T) {
	c := fakeCompleter{response: "not json"}
	sig, err := Classify(context.Background(), c, "what does this function do")
	require.NoError(t, err)
	require.Equal(t, CategoryContext, sig.Category)
	require.False(t, sig.Extractable)
}

func TestClassifyEmptyPromptShortCircuits(t *testing.T) {
	sig, err := Classify(context.Background(), fakeCompleter{}, "   ")
	require.NoError(t, err)
	require.False(t, sig.Extractable)
}
