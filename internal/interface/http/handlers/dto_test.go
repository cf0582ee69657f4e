package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUserID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`42`, "42", false},
		{`"42"`, "42", false},
		{`" abc "`, "abc", false},
		{`null`, "", false},
		{``, "", false},
		{`4.5`, "", true},
		{`true`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		got, err := decodeUserID(json.RawMessage(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestDecodeCategoryID(t *testing.T) {
	id := func(v int64) *int64 { return &v }
	tests := []struct {
		raw     string
		want    *int64
		wantErr bool
	}{
		{`7`, id(7), false},
		{`"12"`, id(12), false},
		{`"all"`, nil, false},
		{`"ALL"`, nil, false},
		{`null`, nil, false},
		{``, nil, false},
		{`"maths"`, nil, true},
		{`[1]`, nil, true},
	}
	for _, tt := range tests {
		got, err := decodeCategoryID(json.RawMessage(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSubmitRequest_Submission(t *testing.T) {
	var req SubmitRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"userId": 5,
		"sessionId": "s-1",
		"categoryId": 3,
		"timeSpent": 90,
		"sessionType": "mock",
		"results": [{"questionId": 11, "isCorrect": true, "timeSpent": 9}]
	}`), &req))

	sub, err := req.Submission()
	require.NoError(t, err)
	assert.Equal(t, "5", sub.StudentID)
	assert.Equal(t, "s-1", sub.SessionID)
	require.NotNil(t, sub.CategoryID)
	assert.Equal(t, int64(3), *sub.CategoryID)
	assert.Equal(t, 90.0, sub.TimeSpentSeconds)
	assert.Equal(t, "mock", sub.SessionType)
	require.Len(t, sub.Results, 1)
	assert.True(t, *sub.Results[0].IsCorrect)
	assert.Equal(t, 9.0, *sub.Results[0].TimeSpentSeconds)
}

func TestSubmitRequest_BindingRules(t *testing.T) {
	gin.SetMode(gin.TestMode)

	bind := func(body string) error {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/theory/submit", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req SubmitRequest
		return c.ShouldBindJSON(&req)
	}

	require.NoError(t, bind(`{"userId":1,"timeSpent":30,"results":[{"questionId":1,"isCorrect":false,"timeSpent":4}]}`))

	rejected := map[string]string{
		"missing results":   `{"userId":1}`,
		"missing isCorrect": `{"userId":1,"results":[{"questionId":1}]}`,
		"zero questionId":   `{"userId":1,"results":[{"questionId":0,"isCorrect":true}]}`,
		"negative time":     `{"userId":1,"timeSpent":-1,"results":[{"questionId":1,"isCorrect":true}]}`,
		"huge result time":  `{"userId":1,"results":[{"questionId":1,"isCorrect":true,"timeSpent":1e308}]}`,
	}
	for name, body := range rejected {
		assert.Error(t, bind(body), name)
	}
}
