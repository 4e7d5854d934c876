package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/depotkit/concierge/pkg/fault"
)

func TestValidate(t *testing.T) {
	full := Scope{TenantID: "t1", AccountID: "a1", UserID: "u1"}
	assert.NoError(t, full.Validate())

	narrowed := full
	narrowed.SubAccountID = "sub-1"
	assert.NoError(t, narrowed.Validate())

	for _, sc := range []Scope{
		{AccountID: "a1", UserID: "u1"},
		{TenantID: "t1", UserID: "u1"},
		{TenantID: "t1", AccountID: "a1"},
	} {
		err := sc.Validate()
		assert.True(t, fault.IsKind(err, fault.Internal))
	}
}

func TestContextRoundTrip(t *testing.T) {
	sc := Scope{TenantID: "t1", AccountID: "a1", UserID: "u1"}
	ctx := NewContext(context.Background(), sc)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, sc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
