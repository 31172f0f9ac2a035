package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagprobe/internal/fill"
	"github.com/banshee-data/tagprobe/internal/source"
	tu "github.com/banshee-data/tagprobe/internal/testutil"
)

// mockS3 serves path-style GET and PUT from memory.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		m.objects[key] = body
		return respond(http.StatusOK, nil), nil
	case http.MethodGet:
		body, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound, []byte("<Error><Code>NoSuchKey</Code></Error>")), nil
		}
		return respond(http.StatusOK, body), nil
	}
	return respond(http.StatusNotImplemented, nil), nil
}

func respond(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(body))},
			"Content-Type":   {"application/xml"},
		},
	}
}

func newMockStager(t *testing.T) (*Stager, *mockS3) {
	t.Helper()
	rt := &mockS3{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewWithClient(client, t.TempDir()), rt
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		wantErr          bool
	}{
		{"s3://events/2018/2018_TT.db", "events", "2018/2018_TT.db", false},
		{"s3://events", "events", "", false},
		{"s3:///key", "", "", true},
		{"/local/path", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseURI(tt.uri)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrBadURI, tt.uri)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.key, key)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "s3://events/2018/2018_TT.db", Join("s3://events/2018", "2018_TT.db"))
	assert.Equal(t, "s3://events/2018/2018_TT.db", Join("s3://events/2018/", "2018_TT.db"))
	assert.Equal(t, "s3://events/2018_TT.db", Join("s3://events", "2018_TT.db"))
}

func TestFetch(t *testing.T) {
	s, rt := newMockStager(t)
	rt.objects["events/2018/2018_TT.db"] = []byte("payload")

	local, err := s.Fetch(context.Background(), "s3://events/2018/2018_TT.db")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(local, "-2018_TT.db"), local)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	again, err := s.Fetch(context.Background(), "s3://events/2018/2018_TT.db")
	require.NoError(t, err)
	assert.NotEqual(t, local, again)

	_, err = s.Fetch(context.Background(), "s3://events/2018/absent.db")
	assert.Error(t, err)
	_, err = s.Fetch(context.Background(), "/not/remote")
	assert.ErrorIs(t, err, ErrBadURI)
}

func TestPublish(t *testing.T) {
	s, rt := newMockStager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sf.txt"), []byte("card"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runfits.sh"), []byte("#!/bin/sh"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	uris, err := s.Publish(context.Background(), dir, "s3://out/2018_inputs_Eff_Res")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"s3://out/2018_inputs_Eff_Res/sf.txt",
		"s3://out/2018_inputs_Eff_Res/runfits.sh",
	}, uris)
	assert.Equal(t, "card", string(rt.objects["out/2018_inputs_Eff_Res/sf.txt"]))
}

func TestOpenerStagesEventFile(t *testing.T) {
	s, rt := newMockStager(t)
	local := t.TempDir()
	tu.WriteEventFile(t, local, "2018", "TT", map[string]tu.EventTable{
		"AnaSkim": {Columns: []string{"x"}, Rows: [][]float64{{1}, {2}}},
	})
	data, err := os.ReadFile(fill.SourcePath(local, "2018", "TT"))
	require.NoError(t, err)
	rt.objects["events/2018/2018_TT.db"] = data

	open := s.Opener("s3://events/2018", fill.OpenFile)
	c, err := open(context.Background(), fill.SourcePath("ignored", "2018", "TT"))
	require.NoError(t, err)
	defer c.Close()
	tbl, err := c.Table(context.Background(), "AnaSkim")
	require.NoError(t, err)

	var n int
	require.NoError(t, tbl.Scan(context.Background(), func(source.Row) error { n++; return nil }))
	assert.Equal(t, 2, n)
}
