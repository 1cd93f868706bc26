package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiotID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    RiotID
		wantErr bool
	}{
		{name: "name and tag", raw: "Faker#KR1", want: RiotID{GameName: "Faker", TagLine: "KR1"}},
		{name: "surrounding space", raw: "  Hide on bush # KR1 ", want: RiotID{GameName: "Hide on bush", TagLine: "KR1"}},
		{name: "bare name gets default tag", raw: "Doublelift", want: RiotID{GameName: "Doublelift", TagLine: "NA1"}},
		{name: "empty tag gets default tag", raw: "Doublelift#", want: RiotID{GameName: "Doublelift", TagLine: "NA1"}},
		{name: "empty", raw: "", wantErr: true},
		{name: "tag only", raw: "#NA1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRiotID(tt.raw, "NA1")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMatchID(t *testing.T) {
	assert.Equal(t, "NA1_4711", NormalizeMatchID("4711", "na1"))
	assert.Equal(t, "EUW1_1", NormalizeMatchID(" EUW1_1 ", "NA1"))
	assert.Equal(t, "", NormalizeMatchID("  ", "NA1"))
}

func TestDetailJobID(t *testing.T) {
	a := DetailJobID([]string{"NA1_2", "NA1_1", "NA1_3"})
	b := DetailJobID([]string{"NA1_3", "NA1_2", "NA1_1", "NA1_1"})
	c := DetailJobID([]string{"NA1_1", "NA1_2"})

	assert.Equal(t, a, b, "order and duplicates do not matter")
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "match_details:"))
	assert.Len(t, strings.TrimPrefix(a, "match_details:"), 32)
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("status 503")
	err := &UpstreamError{Kind: ErrUpstreamTransient, MethodGroup: "match_detail", Status: 503, Attempts: 5, Err: cause}

	assert.ErrorIs(t, err, ErrUpstreamTransient)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, IsRetryLater(err))
	assert.Equal(t, "match_detail: upstream temporarily unavailable (status 503) after 5 attempts: status 503", err.Error())

	notFound := &UpstreamError{Kind: ErrNotFound, MethodGroup: "account", Status: 404, Attempts: 1}
	assert.False(t, IsRetryLater(notFound))
	assert.Equal(t, "account: not found (status 404)", notFound.Error())
}
