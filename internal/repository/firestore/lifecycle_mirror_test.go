package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/repository/firestore"
)

// Runs against the Firestore emulator only.
func TestLifecycleMirror_AppendAndList(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "materialflow-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	mirror := firestore.NewLifecycleMirror(client, "lifecycle-test", zap.NewNop())
	doc := uuid.NewString()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mirror.Append(ctx,
		domain.LifecycleEntry{DocumentID: doc, FromState: domain.StateInterpreted, ToState: domain.StateInterpreted, Agent: "intake", Timestamp: at},
		domain.LifecycleEntry{DocumentID: doc, FromState: domain.StateInterpreted, ToState: domain.StateExtracted, Agent: "oracle", Timestamp: at},
	))
	require.NoError(t, mirror.Append(ctx,
		domain.LifecycleEntry{DocumentID: doc, FromState: domain.StateExtracted, ToState: domain.StateValidated, Agent: "validator", Timestamp: at.Add(time.Second)},
	))

	log, err := mirror.ListByDocument(ctx, doc)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "oracle", log[1].Agent)
	assert.Equal(t, domain.StateValidated, log[2].ToState)
}

func TestNewClient_RequiresProject(t *testing.T) {
	_, err := firestore.NewClient(context.Background(), "")
	assert.Error(t, err)
}
