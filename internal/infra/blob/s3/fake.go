package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewFake returns a Store whose client talks to an in-process fake of the
// handful of S3 calls the store makes. Used by tests in this and other
// packages; no network access happens.
func NewFake(pageSize int32) *Store {
	rt := &FakeTransport{objects: make(map[string]fakeObject)}
	store, err := New(context.Background(), Config{
		Bucket:          "ledgerql-test",
		Region:          "us-east-1",
		Endpoint:        "https://s3.fake.local",
		PathStyle:       true,
		AccessKeyID:     "AKIAFAKE",
		SecretAccessKey: "secret",
		ListPageSize:    pageSize,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		panic(fmt.Sprintf("fake s3: %v", err))
	}
	return store
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

// FakeTransport serves path-style bucket requests from memory.
type FakeTransport struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func respond(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func notFound(key string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message><Key>%s</Key></Error>`, key)
	return respond(http.StatusNotFound, []byte(body), http.Header{"Content-Type": {"application/xml"}})
}

func (f *FakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req)
	}
	obj, exists := f.objects[key]
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		if !exists {
			if req.Method == http.MethodHead {
				return respond(http.StatusNotFound, nil, nil), nil
			}
			return notFound(key), nil
		}
		header := obj.metadata.Clone()
		header.Set("Content-Type", obj.contentType)
		header.Set("Content-Length", strconv.Itoa(len(obj.body)))
		header.Set("ETag", fmt.Sprintf("%q", fmt.Sprintf("%x", len(obj.body))))
		header.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		if req.Method == http.MethodHead {
			resp := respond(http.StatusOK, nil, header)
			resp.ContentLength = int64(len(obj.body))
			return resp, nil
		}
		return respond(http.StatusOK, obj.body, header), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = decodeChunked(body); err != nil {
				return respond(http.StatusBadRequest, []byte(err.Error()), nil), nil
			}
		}
		meta := http.Header{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				meta[name] = values
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: meta, modified: time.Now().UTC()}
		return respond(http.StatusOK, nil, http.Header{"ETag": {`"fake"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	KeyCount              int           `xml:"KeyCount"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

// list pages by key; the continuation token is the last key returned.
func (f *FakeTransport) list(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	prefix, after := q.Get("prefix"), q.Get("continuation-token")
	limit, _ := strconv.Atoi(q.Get("max-keys"))
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var result listResult
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		result.IsTruncated = true
		result.NextContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		obj := f.objects[k]
		result.Contents = append(result.Contents, listContent{Key: k, Size: len(obj.body), LastModified: obj.modified.Format(time.RFC3339)})
	}
	result.KeyCount = len(result.Contents)
	body, err := xml.Marshal(result)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, body, http.Header{"Content-Type": {"application/xml"}}), nil
}

// decodeChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n" repeated
// until a zero-length chunk, followed by optional trailers.
func decodeChunked(raw []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeField := strings.TrimSpace(line)
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeField, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
