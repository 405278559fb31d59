package capture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointGroup_SetKeepsFirstPosition(t *testing.T) {
	var g EndpointGroup
	g.Set("GET /b", EndpointSummary{Path: "/b"})
	g.Set("GET /a", EndpointSummary{Path: "/a"})
	g.Set("GET /b", EndpointSummary{Path: "/b2"})

	assert.Equal(t, []string{"GET /b", "GET /a"}, g.Keys())
	s, ok := g.Get("GET /b")
	require.True(t, ok)
	assert.Equal(t, "/b2", s.Path)

	var nilGroup *EndpointGroup
	assert.Equal(t, 0, nilGroup.Len())
	_, ok = nilGroup.Get("x")
	assert.False(t, ok)
}

func TestCategoryIndex_UnmarshalKeepsDocumentOrder(t *testing.T) {
	doc := `{
		"users": {"GET /z": {"method": "GET", "path": "/z", "request_body_example": {"n": 10}}},
		"auth": {
			"POST /login": {"method": "POST", "path": "/login"},
			"GET /auth/me": {"method": "GET", "path": "/auth/me"}
		}
	}`

	var idx CategoryIndex
	require.NoError(t, json.Unmarshal([]byte(doc), &idx))

	assert.Equal(t, []Category{CategoryUsers, CategoryAuth}, idx.Categories())
	assert.Equal(t, []string{"POST /login", "GET /auth/me"}, idx.Group(CategoryAuth).Keys())

	z, ok := idx.Group(CategoryUsers).Get("GET /z")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": json.Number("10")}, z.RequestBodyExample)

	out, err := json.Marshal(idx)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"users":\{"GET /z":.*\},"auth":\{"POST /login":.*"GET /auth/me":`, string(out))
}

func TestCategoryIndex_NullAndEmpty(t *testing.T) {
	var idx CategoryIndex
	require.NoError(t, json.Unmarshal([]byte(`null`), &idx))
	assert.Equal(t, 0, idx.Len())

	out, err := json.Marshal(idx)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestCategoryIndex_RejectsNonObject(t *testing.T) {
	var idx CategoryIndex
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &idx))

	var g EndpointGroup
	assert.Error(t, json.Unmarshal([]byte(`{"GET /x": 5}`), &g))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	var idx CategoryIndex
	idx.Ensure(CategoryOther).Set("GET /a&b", EndpointSummary{Method: "GET", Path: "/a&b"})

	buf, err := MarshalSnapshot(&Snapshot{Endpoints: idx, Requests: []RequestRecord{}})
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"GET /a&b"`)
	assert.NotContains(t, string(buf), `\u0026`)
}
