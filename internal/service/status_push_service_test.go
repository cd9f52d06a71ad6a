package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/domain"
)

func TestPushStatus(t *testing.T) {
	db := newMemDB(testNow)
	store := db.addStore("s", strPtr("key"))
	imported := db.addTempOrder(domain.TempOrder{StoreID: store.ID, ExternalOrderID: "ord-1", Status: domain.TempOrderStatusImported})
	pending := db.addTempOrder(domain.TempOrder{StoreID: store.ID, ExternalOrderID: "ord-2", Status: domain.TempOrderStatusPending})

	gateway := &fakeGateway{}
	svc := NewStatusPushService(db.repos(), gateway, zap.NewNop())

	require.NoError(t, svc.PushStatus(context.Background(), imported.ID))
	require.NoError(t, svc.PushStatus(context.Background(), pending.ID))
	assert.Equal(t, []string{"ord-1:confirmed"}, gateway.pushed)

	gateway.err = fmt.Errorf("connection reset")
	assert.Error(t, svc.PushStatus(context.Background(), imported.ID), "upstream errors are retried by the worker")
}
