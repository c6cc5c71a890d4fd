package httpremote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jbctechsolutions/projectgate/internal/adapters/workspace/memory"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/testutil"
)

func newUploader(t *testing.T, endpoint string, threshold int64) *Uploader {
	t.Helper()
	u, err := New(Config{
		Endpoint:        endpoint,
		Token:           "secret",
		Threshold:       threshold,
		MaxTries:        3,
		InitialInterval: time.Millisecond,
	}, memory.Codec{}, logging.Discard())
	testutil.AssertNoError(t, err)
	return u
}

func testDoc(t *testing.T) *memory.Document {
	t.Helper()
	d := memory.NewDocument("p1", version.Current)
	testutil.AssertNoError(t, d.Add(memory.Node{ID: "a", Name: "alpha"}))
	return d
}

func TestNew_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com", "::bad"} {
		if _, err := New(Config{Endpoint: endpoint}, memory.Codec{}, nil); err == nil {
			t.Errorf("New(%q) should fail", endpoint)
		}
	}
}

func TestUploadProject_Success(t *testing.T) {
	var gotPath, gotAuth, gotCorrelation, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get(CorrelationHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	u := newUploader(t, srv.URL+"/api/", 0)
	ctx := logging.WithCorrelationID(context.Background(), "corr-1")
	testutil.AssertNoError(t, u.UploadProject(ctx, "p1", testDoc(t)))

	testutil.AssertEqual(t, gotPath, "/api/projects/p1")
	testutil.AssertEqual(t, gotAuth, "Bearer secret")
	testutil.AssertEqual(t, gotCorrelation, "corr-1")

	nodes, err := memory.DecodeNodes([]byte(gotBody))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(nodes), 1)
}

func TestUploadProject_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := newUploader(t, srv.URL, 0)
	testutil.AssertNoError(t, u.UploadProject(context.Background(), "p1", testDoc(t)))
	testutil.AssertEqual(t, calls.Load(), int32(3))
}

func TestUploadProject_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	u := newUploader(t, srv.URL, 0)
	testutil.AssertError(t, u.UploadProject(context.Background(), "p1", testDoc(t)))
	testutil.AssertEqual(t, calls.Load(), int32(3))
}

func TestUploadProject_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	u := newUploader(t, srv.URL, 0)
	err := u.UploadProject(context.Background(), "p1", testDoc(t))
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, calls.Load(), int32(1))
}

func TestUploadProjectWithThreshold(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	u := newUploader(t, srv.URL, 64)
	ctx := context.Background()

	err := u.UploadProjectWithThreshold(ctx, "p1", testDoc(t), 65)
	testutil.AssertErrorIs(t, err, domainerrors.ErrSyncThresholdExceeded)
	testutil.AssertEqual(t, calls.Load(), int32(0))

	testutil.AssertNoError(t, u.UploadProjectWithThreshold(ctx, "p1", testDoc(t), 64))
	testutil.AssertEqual(t, calls.Load(), int32(1))

	// Manual uploads ignore the threshold.
	testutil.AssertNoError(t, u.UploadProject(ctx, "p1", testDoc(t)))
	testutil.AssertEqual(t, calls.Load(), int32(2))
}
