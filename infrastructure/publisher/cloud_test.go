package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/smithy-go"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Well-known development storage account key.
const devAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

type s3Request struct {
	method      string
	path        string
	contentType string
	body        string
}

func newS3Server(t *testing.T, status int, code string) (*httptest.Server, *[]s3Request) {
	t.Helper()

	var mu sync.Mutex
	var requests []s3Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, s3Request{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>test</Message></Error>`, code)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestS3Client(t *testing.T, endpoint string) *S3Client {
	t.Helper()

	client, err := NewS3Client(context.Background(), S3Options{
		Region:          "eu-west-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Client failed: %v", err)
	}
	return client
}

func TestS3Client_Upload(t *testing.T) {
	srv, requests := newS3Server(t, http.StatusOK, "")
	client := newTestS3Client(t, srv.URL)

	err := client.Upload(context.Background(), "facts", "agents/@fin_1.json", "application/json", strings.NewReader(`{"username":"fin_1"}`))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPut || req.path != "/facts/agents/@fin_1.json" {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	if req.contentType != "application/json" {
		t.Errorf("Content-Type = %q", req.contentType)
	}
	if !strings.Contains(req.body, `"username":"fin_1"`) {
		t.Errorf("body = %q", req.body)
	}
}

func TestS3Client_UploadFailures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		code         string
		wantRejected bool
	}{
		{"missing bucket", http.StatusNotFound, "NoSuchBucket", true},
		{"access denied", http.StatusForbidden, "AccessDenied", true},
		{"bad request", http.StatusBadRequest, "InvalidArgument", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newS3Server(t, tt.status, tt.code)
			client := newTestS3Client(t, srv.URL)

			err := client.Upload(context.Background(), "facts", "@a.json", "application/json", strings.NewReader("{}"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUploadRejected); got != tt.wantRejected {
				t.Errorf("rejected = %v, want %v (err %v)", got, tt.wantRejected, err)
			}
		})
	}
}

func TestS3Client_BaseURL(t *testing.T) {
	t.Parallel()

	regional := &S3Client{region: "eu-west-1"}
	if got := regional.BaseURL("facts"); got != "https://facts.s3.eu-west-1.amazonaws.com" {
		t.Errorf("BaseURL = %s", got)
	}
	compatible := &S3Client{endpoint: "http://minio:9000/"}
	if got := compatible.BaseURL("facts"); got != "http://minio:9000/facts" {
		t.Errorf("BaseURL = %s", got)
	}
}

func TestObjectPublisher_UsesClientBaseURL(t *testing.T) {
	srv, _ := newS3Server(t, http.StatusOK, "")
	client := newTestS3Client(t, srv.URL)

	p, err := NewObjectPublisher(ObjectConfig{Client: client, Bucket: "facts"})
	if err != nil {
		t.Fatalf("NewObjectPublisher failed: %v", err)
	}

	rec := registry.NewRecord(registry.AgentRegistration{AgentID: "fin-1", AgentURL: "http://fin"}, time.Now())
	url, err := p.Publish(context.Background(), registry.NewGenerator().Generate(rec))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if want := srv.URL + "/facts/@fin_1.json"; url != want {
		t.Errorf("url = %s, want %s", url, want)
	}
}

func TestRejectedByS3(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{&smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "AccessDenied"}), true},
		{&smithy.GenericAPIError{Code: "SlowDown"}, false},
		{errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		if got := rejectedByS3(tt.err); got != tt.want {
			t.Errorf("rejectedByS3(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewAzureClient(t *testing.T) {
	t.Parallel()

	if _, err := NewAzureClient(AzureOptions{}); err == nil {
		t.Error("expected error without account or connection string")
	}

	client, err := NewAzureClient(AzureOptions{AccountName: "registry", AccountKey: devAccountKey})
	if err != nil {
		t.Fatalf("NewAzureClient failed: %v", err)
	}
	if got := client.BaseURL("facts"); got != "https://registry.blob.core.windows.net/facts" {
		t.Errorf("BaseURL = %s", got)
	}

	connStr := "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=" + devAccountKey +
		";BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"
	local, err := NewAzureClient(AzureOptions{ConnectionString: connStr})
	if err != nil {
		t.Fatalf("NewAzureClient from connection string failed: %v", err)
	}
	if got := local.BaseURL("facts"); got != "http://127.0.0.1:10000/devstoreaccount1/facts" {
		t.Errorf("BaseURL = %s", got)
	}
}

func TestRejectedByAzure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"missing container", &azcore.ResponseError{ErrorCode: "ContainerNotFound", StatusCode: http.StatusNotFound}, true},
		{"forbidden", &azcore.ResponseError{ErrorCode: "Unknown", StatusCode: http.StatusForbidden}, true},
		{"server busy", &azcore.ResponseError{ErrorCode: "ServerBusy", StatusCode: http.StatusServiceUnavailable}, false},
		{"network", errors.New("dial tcp: refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := rejectedByAzure(tt.err); got != tt.want {
				t.Errorf("rejectedByAzure = %v, want %v", got, tt.want)
			}
		})
	}
}
