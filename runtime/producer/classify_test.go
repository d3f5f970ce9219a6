package producer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorType
		msg  string
	}{
		{"overloaded", engine.NewProviderError("anthropic", 529, "", "", nil), ErrorTypeProviderOverloaded, PublicErrorProviderOverloaded},
		{"unavailable", engine.NewProviderError("openai", 503, "", "", nil), ErrorTypeProviderOverloaded, PublicErrorProviderOverloaded},
		{"rate limited", fmt.Errorf("turn 2: %w", engine.NewProviderError("openai", 429, "", "", nil)), ErrorTypeProviderOverloaded, PublicErrorProviderRateLimited},
		{"auth", engine.NewProviderError("openai", 401, "", "", nil), ErrorTypeUnclassified, PublicErrorProviderRejected},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTypeTimeout, PublicErrorTimeout},
		{"max iterations", &engine.PartialError{Err: engine.ErrMaxIterations}, ErrorTypeMaxIterations, PublicErrorMaxIterations},
		{"canceled", context.Canceled, ErrorTypeCanceled, PublicErrorCanceled},
		{"wrapped canceled", &engine.PartialError{Partial: "Dear", Err: fmt.Errorf("model call: %w", context.Canceled)}, ErrorTypeCanceled, PublicErrorCanceled},
		{"other", errors.New("db password=hunter2"), ErrorTypeUnclassified, PublicErrorInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Classify(tc.err)
			require.Equal(t, tc.want, f.Type)
			require.Equal(t, tc.msg, f.Message)
			require.NotContains(t, f.Message, "hunter2")
		})
	}
}

func TestClassifyCarriesPartialResponse(t *testing.T) {
	f := Classify(&engine.PartialError{Partial: "draft", Err: context.DeadlineExceeded})
	require.Equal(t, ErrorTypeTimeout, f.Type)
	require.Equal(t, "draft", f.PartialResponse)
	require.Empty(t, Classify(errors.New("x")).PartialResponse)
}
