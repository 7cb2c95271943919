package recipients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider() *Provider {
	groups := NewMemoryGroups()
	groups.Put(Group{ID: "g1", TenantID: "t1", Name: "staff"}, "0911000001", " 0911000002 ", "0911000001", "bogus")
	groups.Put(Group{ID: "empty", TenantID: "t1"}, "bogus")
	groups.Put(Group{ID: "g2", TenantID: "t2"}, "0911000009")
	return NewProvider(groups)
}

func TestProvider_Single(t *testing.T) {
	p := newProvider()
	got, err := p.ResolveRecipients(context.Background(), "t1", jobs.JobTypeSingle, jobs.SourceRef{Phone: " +251911000001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+251911000001"}, got)

	_, err = p.ResolveRecipients(context.Background(), "t1", jobs.JobTypeSingle, jobs.SourceRef{Phone: "123"})
	assert.True(t, apperr.IsValidation(err))
}

func TestProvider_Group(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	got, err := p.ResolveRecipients(ctx, "t1", jobs.JobTypeGroup, jobs.SourceRef{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0911000001", "0911000002"}, got)

	_, err = p.ResolveRecipients(ctx, "t1", jobs.JobTypeGroup, jobs.SourceRef{GroupID: "g2"})
	assert.True(t, apperr.IsNotFound(err), "foreign group must look missing")
	assert.True(t, errors.Is(err, ErrGroupNotFound))

	_, err = p.ResolveRecipients(ctx, "t1", jobs.JobTypeGroup, jobs.SourceRef{GroupID: "empty"})
	assert.True(t, apperr.IsBusinessRule(err))
}

func TestProvider_Bulk(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	got, err := p.ResolveRecipients(ctx, "t1", jobs.JobTypeBulk, jobs.SourceRef{Upload: strings.NewReader("phone\n0911000001\n0911000002\n")})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = p.ResolveRecipients(ctx, "t1", jobs.JobTypeBulk, jobs.SourceRef{Upload: strings.NewReader("phone\nxyz\n")})
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
	assert.Contains(t, err.Error(), "CSV file contains no valid phone numbers")

	_, err = p.ResolveRecipients(ctx, "t1", jobs.JobTypeBulk, jobs.SourceRef{})
	assert.True(t, apperr.IsValidation(err))
}
