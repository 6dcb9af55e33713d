package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"humanly-server/internal/config"
)

func TestDecodeEnvelopeProbesShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"content 字段", `{"content":"回复 A"}`, "回复 A"},
		{"response 字段", `{"response":"回复 B"}`, "回复 B"},
		{"extractedContent 字段", `{"extractedContent":"回复 C"}`, "回复 C"},
		{"OpenAI 风格", `{"choices":[{"message":{"content":"回复 D"}}]}`, "回复 D"},
		{"裸字符串", `"回复 E"`, "回复 E"},
		{"content 优先于 response", `{"content":"先","response":"后"}`, "先"},
		{"空 content 继续探测", `{"content":"  ","response":"兜住了"}`, "兜住了"},
		{"全部为空用兜底", `{}`, FallbackReply},
		{"非 JSON 用兜底", `<html>502 Bad Gateway</html>`, FallbackReply},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := DecodeEnvelope([]byte(tc.body))
			require.NotNil(t, envelope)
			require.Equal(t, tc.want, envelope.Text)
		})
	}
}

func TestDecodeEnvelopeCarriesUsage(t *testing.T) {
	envelope := DecodeEnvelope([]byte(`{"content":"hi","usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`))
	require.NotNil(t, envelope.Usage)
	require.Equal(t, 12, envelope.Usage.TotalTokens)

	// 未报告用量时为 nil
	envelope = DecodeEnvelope([]byte(`{"content":"hi"}`))
	require.Nil(t, envelope.Usage)
}

func testClient(baseURL string) *Client {
	return NewClient(&config.Config{
		AI: config.AIConfig{
			APIKey:  "test-key",
			BaseURL: baseURL,
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		},
	})
}

func TestStreamAssemblesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"你\"}}]}\n\n"))
		w.Write([]byte("这是一条畸形行，应当被跳过\n\n"))
		w.Write([]byte("data: 不是 JSON 的 data 行也跳过\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"好\"}}],\"usage\":{\"total_tokens\":3}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	var deltas []string
	envelope, err := testClient(server.URL).Stream(context.Background(),
		[]Message{{Role: "user", Content: "在吗"}},
		func(delta string) { deltas = append(deltas, delta) })

	require.NoError(t, err)
	require.Equal(t, "你好", envelope.Text)
	require.Equal(t, []string{"你", "好"}, deltas)
	require.NotNil(t, envelope.Usage)
	require.Equal(t, 3, envelope.Usage.TotalTokens)
}

func TestStreamEmptyUsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	envelope, err := testClient(server.URL).Stream(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, FallbackReply, envelope.Text)
}

func TestStreamServerErrorSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Stream(context.Background(), nil, nil)
	require.Error(t, err)
	// 错误信息携带状态码和响应体，供上层分类
	require.Equal(t, ErrorKindAuth, ClassifyError(err))
}

func TestStreamMissingAPIKey(t *testing.T) {
	client := NewClient(&config.Config{AI: config.AIConfig{BaseURL: "http://localhost:1", Timeout: time.Second}})

	_, err := client.Stream(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = client.Complete(context.Background(), nil)
	require.Error(t, err)
}

func TestCompleteDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"完整回复"}}],"usage":{"total_tokens":9}}`))
	}))
	defer server.Close()

	envelope, err := testClient(server.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "你好"}})
	require.NoError(t, err)
	require.Equal(t, "完整回复", envelope.Text)
	require.Equal(t, 9, envelope.Usage.TotalTokens)
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, ErrorKindQuota, ClassifyError(errorString("You exceeded your current quota")))
	require.Equal(t, ErrorKindQuota, ClassifyError(errorString("rate limit reached")))
	require.Equal(t, ErrorKindQuota, ClassifyError(errorString("billing hard limit")))
	require.Equal(t, ErrorKindAuth, ClassifyError(errorString("Incorrect API key provided")))
	require.Equal(t, ErrorKindAuth, ClassifyError(errorString("service returned status 401")))
	require.Equal(t, ErrorKindGeneric, ClassifyError(errorString("connection refused")))
	require.Equal(t, ErrorKindGeneric, ClassifyError(nil))
}

// errorString 便捷的字符串错误
type errorString string

func (e errorString) Error() string { return string(e) }
