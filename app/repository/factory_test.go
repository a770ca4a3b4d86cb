package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Fulfillment/internal/pkg/database/dbtest"
)

func TestFactoryReturnsSharedRepositories(t *testing.T) {
	f := NewFactory(dbtest.New(t))

	first := f.GetRepositories()
	require.NotNil(t, first)
	assert.Same(t, first, f.GetRepositories())
	assert.NotNil(t, first.PaymentEvent)
	assert.NotNil(t, first.Provisioning)
}
