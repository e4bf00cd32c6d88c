package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/utils"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/ctxkeys"
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncCall struct {
	tenantID  string
	accountID string
	window    models.TimeRange
	ctxTenant string
}

type fakeSyncer struct {
	calls []syncCall
	err   error
}

func (f *fakeSyncer) SyncAccount(ctx context.Context, tenantID, accountID string, window models.TimeRange) (*models.SyncResult, error) {
	f.calls = append(f.calls, syncCall{tenantID: tenantID, accountID: accountID, window: window, ctxTenant: ctxkeys.Tenant(ctx)})
	if f.err != nil {
		return nil, f.err
	}
	return &models.SyncResult{AccountID: accountID, Success: true, OrdersProcessed: 3}, nil
}

type fakeRunner struct {
	tenants []string
	err     error
}

func (f *fakeRunner) RunPass(_ context.Context, tenantID string) (*models.PricePushResult, error) {
	f.tenants = append(f.tenants, tenantID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PricePushResult{Processed: 2}, nil
}

func message(body string) *interfaces.Message {
	return &interfaces.Message{ID: "msg-1", Topic: "marketplace-commands", Value: []byte(body)}
}

func TestCommandHandler_SyncAccount(t *testing.T) {
	syncer := &fakeSyncer{}
	runner := &fakeRunner{}
	handle := CommandHandler(syncer, runner, logger.NewNopLogger())

	err := handle(context.Background(), message(`{"type":"sync_account","tenant_id":"t1","account_id":"acc-1"}`))
	require.NoError(t, err)

	require.Len(t, syncer.calls, 1)
	assert.Equal(t, "t1", syncer.calls[0].tenantID)
	assert.Equal(t, "acc-1", syncer.calls[0].accountID)
	assert.Equal(t, "t1", syncer.calls[0].ctxTenant)
	assert.True(t, syncer.calls[0].window.From.IsZero())
	assert.Empty(t, runner.tenants)
}

func TestCommandHandler_SyncAccountWindow(t *testing.T) {
	syncer := &fakeSyncer{}
	handle := CommandHandler(syncer, &fakeRunner{}, logger.NewNopLogger())

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	body := fmt.Sprintf(`{"type":"sync_account","tenant_id":"t1","account_id":"acc-1","from":%q,"to":%q}`,
		from.Format(time.RFC3339), to.Format(time.RFC3339))

	require.NoError(t, handle(context.Background(), message(body)))
	require.Len(t, syncer.calls, 1)
	assert.True(t, syncer.calls[0].window.From.Equal(from))
	assert.True(t, syncer.calls[0].window.To.Equal(to))

	// половина окна - команда отклоняется без вызова синхронизации
	half := fmt.Sprintf(`{"type":"sync_account","tenant_id":"t1","account_id":"acc-1","from":%q}`, from.Format(time.RFC3339))
	require.NoError(t, handle(context.Background(), message(half)))
	assert.Len(t, syncer.calls, 1)
}

func TestCommandHandler_PricePush(t *testing.T) {
	runner := &fakeRunner{}
	handle := CommandHandler(&fakeSyncer{}, runner, logger.NewNopLogger())

	require.NoError(t, handle(context.Background(), message(`{"type":"price_push","tenant_id":"t1"}`)))
	require.NoError(t, handle(context.Background(), message(`{"type":"price_push"}`)))

	assert.Equal(t, []string{"t1", ""}, runner.tenants)
}

func TestCommandHandler_TenantFromHeader(t *testing.T) {
	runner := &fakeRunner{}
	handle := CommandHandler(&fakeSyncer{}, runner, logger.NewNopLogger())

	msg := message(`{"type":"price_push"}`)
	msg.TenantID = "t9"
	require.NoError(t, handle(context.Background(), msg))

	assert.Equal(t, []string{"t9"}, runner.tenants)
}

func TestCommandHandler_InvalidCommandsAreAcked(t *testing.T) {
	syncer := &fakeSyncer{}
	runner := &fakeRunner{}
	handle := CommandHandler(syncer, runner, logger.NewNopLogger())

	for _, body := range []string{
		`not json`,
		`{"type":"reindex"}`,
		`{"type":"sync_account","tenant_id":"t1"}`,
	} {
		assert.NoError(t, handle(context.Background(), message(body)), body)
	}
	assert.Empty(t, syncer.calls)
	assert.Empty(t, runner.tenants)
}

func TestCommandHandler_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"inactive", utils.ErrAccountInactive, false},
		{"not allowed", utils.ErrSyncNotAllowed, false},
		{"in progress", utils.ErrSyncInProgress, false},
		{"not found", fmt.Errorf("account: %w", utils.ErrNotFound), false},
		{"persistence", fmt.Errorf("load account: %w", utils.ErrPersistence), true},
		{"other", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{err: tt.err}
			handle := CommandHandler(syncer, &fakeRunner{}, logger.NewNopLogger())

			err := handle(context.Background(), message(`{"type":"sync_account","tenant_id":"t1","account_id":"acc-1"}`))
			if tt.wantRetry {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
