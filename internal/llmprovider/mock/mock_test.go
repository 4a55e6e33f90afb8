package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/agentmeshio/meshcore/internal/ports"
	"github.com/stretchr/testify/require"
)

func TestDefaultGenerateEchoesPrompt(t *testing.T) {
	p := New()
	out, err := p.Generate(context.Background(), "hello", "m", nil)
	require.NoError(t, err)
	require.Contains(t, out, "hello")
	require.Equal(t, 1, p.CallCount())
	require.Equal(t, "hello", p.LastPrompt())
}

func TestCustomGenerateFuncOverridesDefault(t *testing.T) {
	p := NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return "custom:" + prompt, nil
	})
	out, err := p.Generate(context.Background(), "hi", "m", nil)
	require.NoError(t, err)
	require.Equal(t, "custom:hi", out)
}

func TestGenerateBatchCallsGenerateForEachPrompt(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	p := NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		calls++
		if prompt == "bad" {
			return "", wantErr
		}
		return "ok:" + prompt, nil
	})

	texts, errs := p.GenerateBatch(context.Background(), []string{"a", "bad", "c"}, "m", nil)
	require.Equal(t, 3, calls)
	require.Equal(t, []string{"ok:a", "", "ok:c"}, texts)
	require.Nil(t, errs[0])
	require.ErrorIs(t, errs[1], wantErr)
	require.Nil(t, errs[2])
}
