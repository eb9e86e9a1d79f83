package partner

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	ExternalProfileProvider
	calls int
}

func (p *countingProvider) StudentProfile(ctx context.Context, email string) (*StudentProfile, error) {
	p.calls++
	return &StudentProfile{Email: email, MentorEmails: []string{"m@example.com"}}, nil
}

func TestCachedProviderHonoursTTL(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	inner := &countingProvider{}
	p := NewCachedProvider(inner, NewMemoryCache(clk), ProfileTTLMock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		profile, err := p.StudentProfile(ctx, "S@example.com ")
		require.NoError(t, err)
		assert.Equal(t, []string{"m@example.com"}, profile.MentorEmails)
	}
	assert.Equal(t, 1, inner.calls)

	clk.Advance(ProfileTTLMock)
	_, err := p.StudentProfile(ctx, "s@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
