package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGlobalLoggerChains(t *testing.T) {
	require.NotNil(t, L())

	// leveled events chain directly off the accessor
	L().Debug().Str(FieldUserID, "alice").Msg("chained call")
	L().Info().Msg("chained call")
	L().Warn().Err(nil).Msg("chained call")
}

func TestCtxReturnsStoredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	Ctx(ctx).Info().Str(FieldChatID, "c1").Msg("from context")

	require.Contains(t, buf.String(), `"chat_id":"c1"`)
	require.Contains(t, buf.String(), "from context")
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	require.Equal(t, L(), Ctx(context.Background()))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}
