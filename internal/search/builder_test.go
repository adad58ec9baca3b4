package search_test

import (
	"testing"

	"searchsync/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams_MatchAllDefaults(t *testing.T) {
	params := search.BuildParams(search.Request{
		FreeTextFields: []string{"title", "body"},
	})

	assert.Equal(t, "*", params.Q)
	assert.Equal(t, "title,body", params.QueryBy)
	assert.Nil(t, params.FilterBy)
	assert.Nil(t, params.DropTokensThreshold)
	require.NotNil(t, params.SortBy)
	assert.Equal(t, "updated_at:asc", *params.SortBy)
	assert.Nil(t, params.Offset)
	assert.Nil(t, params.Limit)
}

func TestBuildParams_FreeTextRequiresAllTokens(t *testing.T) {
	params := search.BuildParams(search.Request{
		FreeText:       "red shoes",
		FreeTextFields: []string{"title", "body"},
	})

	assert.Equal(t, "red shoes", params.Q)
	require.NotNil(t, params.DropTokensThreshold)
	assert.Equal(t, 0, *params.DropTokensThreshold)
}

func TestBuildParams_TermsAreConjoined(t *testing.T) {
	params := search.BuildParams(search.Request{
		Terms: []search.Term{
			{Field: "status", Value: "open"},
			{Field: "priority", Value: 3},
		},
	})

	require.NotNil(t, params.FilterBy)
	assert.Equal(t, "status:=`open` && priority:=3", *params.FilterBy)
}

func TestBuildParams_SliceTermBecomesSetMembership(t *testing.T) {
	params := search.BuildParams(search.Request{
		Terms: []search.Term{
			{Field: "tags", Value: []string{"go", "search"}},
		},
	})

	require.NotNil(t, params.FilterBy)
	assert.Equal(t, "tags:=[`go`,`search`]", *params.FilterBy)
}

func TestBuildParams_SortAndPaging(t *testing.T) {
	params := search.BuildParams(search.Request{
		Skip:     20,
		Take:     10,
		SortBy:   "created_at",
		SortDesc: true,
	})

	require.NotNil(t, params.SortBy)
	assert.Equal(t, "created_at:desc", *params.SortBy)
	require.NotNil(t, params.Offset)
	assert.Equal(t, 20, *params.Offset)
	require.NotNil(t, params.Limit)
	assert.Equal(t, 10, *params.Limit)
}

func TestBuildParams_EmptyFieldTermIsSkipped(t *testing.T) {
	params := search.BuildParams(search.Request{
		Terms: []search.Term{{Field: "", Value: "ignored"}},
	})

	assert.Nil(t, params.FilterBy)
}
